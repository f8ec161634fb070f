package algod

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"github.com/deptagency/algomart-sub001/fault"
)

// do performs one request and decodes the JSON response into target.
// Non-2xx responses become a *NodeError carrying the node's message;
// transport failures are wrapped system faults.
func (h *HTTP) do(method, path, contentType string, body []byte, target interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(h.baseURL + path)
	req.Header.Set(tokenHeader, h.token)
	if contentType != "" {
		req.Header.SetContentType(contentType)
	}
	if body != nil {
		req.SetBody(body)
	}

	if err := h.client.Do(req, resp); err != nil {
		return fault.Wrap(err)
	}

	status := resp.StatusCode()
	respBody := resp.Body()

	if status < 200 || status > 299 {
		ne := &NodeError{Status: status}
		var nodeMsg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &nodeMsg) == nil && nodeMsg.Message != "" {
			ne.Message = nodeMsg.Message
		} else {
			ne.Message = string(respBody)
		}
		return ne
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, target); err != nil {
		return fault.Wrap(err)
	}
	return nil
}
