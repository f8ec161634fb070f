package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/deptagency/algomart-sub001/log"
)

type config struct {
	// MySQL configs.
	User     string
	Password string
	Hostname string
	Port     string
	Database string

	// Label sets log output prefix.
	Label string

	// Algod node endpoint.
	AlgodURL   string `mapstructure:"algod_url"`
	AlgodToken string `mapstructure:"algod_token"`

	// Redis claim queue.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	ClaimQueueKey string `mapstructure:"claim_queue_key"`

	// FundingMnemonic recovers the platform account that pays fees,
	// funds custodial accounts and holds clawback authority.
	FundingMnemonic string `mapstructure:"funding_mnemonic"`

	// AppSecret keys the custodial key cipher.
	AppSecret string `mapstructure:"app_secret"`

	// DappName prefixes every transaction note.
	DappName string `mapstructure:"dapp_name"`

	// EnforcerAppID, when non-zero, takes the authority roles on
	// minted assets.
	EnforcerAppID uint64 `mapstructure:"enforcer_app_id"`

	// InitialBalance funds fresh custodial accounts, in microAlgos.
	InitialBalance uint64 `mapstructure:"initial_balance"`

	// ExtraRounds widens transaction validity windows beyond the
	// node's default.
	ExtraRounds uint64 `mapstructure:"extra_rounds"`

	// Worker cadence, in milliseconds.
	SubmitIntervalMs  int `mapstructure:"submit_interval_ms"`
	ConfirmIntervalMs int `mapstructure:"confirm_interval_ms"`
	ConfirmBatchLimit int `mapstructure:"confirm_batch_limit"`

	// Workers sets the number of claim consumer goroutines.
	Workers int

	// AliyunMail is an optional config which will be used in mail alert package.
	AliyunMail AliyunMailConfig `mapstructure:"aliyun_mail"`
}

// AliyunMailConfig is the struct for aliyun mail configs.
type AliyunMailConfig struct {
	AccountName     string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
	Receiver        []string
}

var cfg config

// Load reads and validates the configuration, then watches the file
// for changes.
func Load(display bool) {
	viper.SetConfigName("config")
	viper.AddConfigPath("./config")
	// Incase test cases require loading configs.
	viper.AddConfigPath("../config")

	viper.SetDefault("dapp_name", "AlgoMart")
	viper.SetDefault("claim_queue_key", "claim-jobs")
	viper.SetDefault("initial_balance", 100_000)
	viper.SetDefault("submit_interval_ms", 1000)
	viper.SetDefault("confirm_interval_ms", 1000)
	viper.SetDefault("confirm_batch_limit", 16)

	if err := load(display); err != nil {
		panic(err)
	}

	if err := check(); err != nil {
		panic(err)
	}

	update()

	log.UpdatePrefix(GetLabel())

	viper.WatchConfig()
	viper.OnConfigChange(onConfigChange)
}

func load(display bool) error {
	err := viper.ReadInConfig()
	if err != nil {
		return err
	}

	err = viper.Unmarshal(&cfg)
	if err != nil {
		return err
	}

	if display {
		shown := cfg
		shown.FundingMnemonic = "<redacted>"
		shown.AppSecret = "<redacted>"
		configContent, _ := json.MarshalIndent(shown, "", "    ")
		log.Println(string(configContent))
	}

	return nil
}

func update() {
	if !strings.HasPrefix(cfg.AlgodURL, "http") {
		cfg.AlgodURL = "http://" + cfg.AlgodURL
	}
}

// GetDbConnStr returns mysql connection string.
func GetDbConnStr() string {
	str := fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s",
		cfg.User,
		cfg.Password,
		cfg.Hostname,
		cfg.Port,
		cfg.Database,
	)

	params := []string{
		"charset=utf8",
		"parseTime=True",
		"loc=Local",
		"maxAllowedPacket=52428800",
		"multiStatements=True",
	}

	return fmt.Sprintf("%s?%s", str, strings.Join(params, "&"))
}

// GetLabel returns custom label as console output prefix.
func GetLabel() string {
	return cfg.Label
}

// GetAlgodURL returns the node endpoint.
func GetAlgodURL() string {
	return cfg.AlgodURL
}

// GetAlgodToken returns the node API token.
func GetAlgodToken() string {
	return cfg.AlgodToken
}

// GetRedis returns the claim queue connection settings.
func GetRedis() (addr, password string, db int, queueKey string) {
	return cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ClaimQueueKey
}

// GetFundingMnemonic returns the platform account mnemonic.
func GetFundingMnemonic() string {
	return cfg.FundingMnemonic
}

// GetAppSecret returns the custodial key cipher secret.
func GetAppSecret() string {
	return cfg.AppSecret
}

// GetDappName returns the note prefix.
func GetDappName() string {
	return cfg.DappName
}

// GetEnforcerAppID returns the royalty enforcer application id, zero
// when unset.
func GetEnforcerAppID() uint64 {
	return cfg.EnforcerAppID
}

// GetInitialBalance returns the custodial funding amount.
func GetInitialBalance() uint64 {
	return cfg.InitialBalance
}

// GetExtraRounds returns the validity window extension.
func GetExtraRounds() uint64 {
	return cfg.ExtraRounds
}

// GetSubmitIntervalMs returns the submission poll cadence.
func GetSubmitIntervalMs() int {
	return cfg.SubmitIntervalMs
}

// GetConfirmIntervalMs returns the confirmation poll cadence.
func GetConfirmIntervalMs() int {
	return cfg.ConfirmIntervalMs
}

// GetConfirmBatchLimit returns how many pending rows one confirmation
// pass inspects.
func GetConfirmBatchLimit() int {
	return cfg.ConfirmBatchLimit
}

// GetGoroutines returns the number of working goroutines.
func GetGoroutines() int {
	return cfg.Workers
}

// LoadAliyunMailConfig performs a basic check on aliyun mail config.
func LoadAliyunMailConfig() error {
	if err := checkAliyunMail(); err != nil {
		return err
	}

	return nil
}

// GetAliyunMailConfig returns aliyun mail configs.
func GetAliyunMailConfig() AliyunMailConfig {
	return cfg.AliyunMail
}

func check() error {
	if err := checkWorker(); err != nil {
		return err
	}

	if err := checkAlgod(); err != nil {
		return err
	}

	if err := checkSecrets(); err != nil {
		return err
	}

	if cfg.RedisAddr == "" {
		return errors.New("redis_addr must be set")
	}

	return nil
}

func checkWorker() error {
	if cfg.Workers < 1 {
		return errors.New("value of 'workers' must greater than or equal to 1")
	}
	return nil
}

func checkAlgod() error {
	if cfg.AlgodURL == "" {
		return errors.New("algod_url must be set")
	}

	raw := cfg.AlgodURL
	if strings.HasPrefix(raw, "http") {
		u, err := url.Parse(raw)
		if err != nil {
			return err
		}
		raw = u.Host
	}
	if raw == "" {
		return errors.New("algod_url is not a valid endpoint")
	}

	return nil
}

func checkSecrets() error {
	if cfg.FundingMnemonic == "" {
		return errors.New("funding_mnemonic must be set")
	}
	if cfg.AppSecret == "" {
		return errors.New("app_secret must be set")
	}
	return nil
}

func checkAliyunMail() error {
	m := cfg.AliyunMail

	if m.AccountName == "" {
		return errors.New("aliyun mail account name cannot be empty")
	}

	if m.Region == "" {
		return errors.New("aliyun mail region cannot be empty")
	}

	if m.AccessKeyID == "" {
		return errors.New("aliyun mail accessKeyID cannot be empty")
	}

	if m.AccessKeySecret == "" {
		return errors.New("aliyun mail accessKeySecret cannot be empty")
	}

	if len(m.Receiver) == 0 {
		return errors.New("aliyun mail receiver cannot be empty")
	}

	return nil
}

func onConfigChange(e fsnotify.Event) {
	log.Printf("Config file change detected: %s", e.Name)

	const stdErr = "Failed to read new configuration, current configuration stay unchanged"

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("%s: %s", stdErr, err)
		return
	}

	if err := load(true); err != nil {
		log.Printf("%s: %s", stdErr, err)
		return
	}

	if err := check(); err != nil {
		log.Printf("%s: %s", stdErr, err)
		return
	}

	log.UpdatePrefix(GetLabel())
}
