// Package db is the only writer of the engine's MySQL state. All
// cross-worker exclusion lives here, expressed as conditional UPDATEs
// whose WHERE clauses re-check the state being left.
package db

import (
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/deptagency/algomart-sub001/config"
	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/log"
)

var (
	conn   *sql.DB
	locker uint32
)

// Init connects to the configured mysql database.
func Init() {
	var err error

	conn, err = sql.Open("mysql", config.GetDbConnStr())
	if err != nil {
		panic(err)
	}
}

// Close releases the connection pool.
func Close() {
	if conn != nil {
		conn.Close()
	}
}

func reconnect() {
	if !atomic.CompareAndSwapUint32(&locker, 0, 1) {
		for {
			// Lock was held by others, wait till lock released.
			time.Sleep(20 * time.Millisecond)
			if atomic.LoadUint32(&locker) != 1 {
				return
			}
		}
	}

	defer atomic.StoreUint32(&locker, 0)

	for {
		log.Printf("Try reconnecting to database...")
		conn, _ = sql.Open("mysql", config.GetDbConnStr())

		if err := conn.Ping(); err == nil {
			return
		}

		log.Printf("Wait for few seconds to reconnect again")
		time.Sleep(5 * time.Second)
	}
}

func wrappedQuery(query string, args ...interface{}) (*sql.Rows, error) {
	for {
		rows, err := conn.Query(query, args...)
		if err == nil {
			return rows, nil
		}

		if !connErr(err) {
			return nil, fault.Wrap(err)
		}

		reconnect()
	}
}

// wrappedExec runs a statement and returns the number of affected
// rows. Conditional updates read that count to learn whether their
// WHERE clause still held.
func wrappedExec(query string, args ...interface{}) (int64, error) {
	for {
		res, err := conn.Exec(query, args...)
		if err == nil {
			n, err := res.RowsAffected()
			return n, fault.Wrap(err)
		}

		if !connErr(err) {
			return 0, fault.Wrap(err)
		}

		reconnect()
	}
}

func transact(txFunc func(*sql.Tx) error) (err error) {
	tx, err := conn.Begin()
	if err != nil {
		if !connErr(err) {
			return fault.Wrap(err)
		}

		reconnect()
		return transact(txFunc)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = fault.Wrap(tx.Commit())
		}
	}()

	err = txFunc(tx)
	if err == nil || !connErr(err) {
		return fault.Wrap(err)
	}

	reconnect()
	return transact(txFunc)
}

func connErr(err error) bool {
	if err == nil {
		return false
	}

	log.Println(err)

	if err == mysql.ErrInvalidConn ||
		strings.HasSuffix(err.Error(), "operation timed out") ||
		strings.HasSuffix(err.Error(), "Server shutdown in progress") ||
		strings.HasPrefix(err.Error(), "Error 1290") {
		return true
	}

	return false
}

// Store exposes the engine's persistence operations. It is a plain
// handle over the package connection so workers depend on an interface
// and tests swap in fakes.
type Store struct{}

// NewStore returns the shared store handle. Init must run first.
func NewStore() *Store {
	return &Store{}
}
