package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Submit creates a new task.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Zinc.Submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskList returns every task snapshot.
func (c *Client) TaskList() (*TaskListResponse, error) {
	var resp TaskListResponse
	if err := c.client.Call("Zinc.TaskList", TaskListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskDescribe returns a single task snapshot.
func (c *Client) TaskDescribe(id string) (*TaskDescribeResponse, error) {
	var resp TaskDescribeResponse
	if err := c.client.Call("Zinc.TaskDescribe", TaskDescribeRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskCancel requests cooperative cancellation of a task.
func (c *Client) TaskCancel(id string) (*TaskCancelResponse, error) {
	var resp TaskCancelResponse
	if err := c.client.Call("Zinc.TaskCancel", TaskCancelRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskClear removes finished tasks.
func (c *Client) TaskClear(all bool) (*TaskClearResponse, error) {
	var resp TaskClearResponse
	if err := c.client.Call("Zinc.TaskClear", TaskClearRequest{All: all}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Engines returns engine descriptors.
func (c *Client) Engines() (*EnginesResponse, error) {
	var resp EnginesResponse
	if err := c.client.Call("Zinc.Engines", EnginesRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EngineInstall stages an engine runtime.
func (c *Client) EngineInstall(engineID string) (*EngineInstallResponse, error) {
	var resp EngineInstallResponse
	if err := c.client.Call("Zinc.EngineInstall", EngineInstallRequest{EngineID: engineID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModelDownload fetches a model for an engine.
func (c *Client) ModelDownload(engineID, modelID string) (*ModelDownloadResponse, error) {
	var resp ModelDownloadResponse
	req := ModelDownloadRequest{EngineID: engineID, ModelID: modelID}
	if err := c.client.Call("Zinc.ModelDownload", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Zinc.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Zinc.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns recent journal entries.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.client.Call("Zinc.History", HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryClear empties the journal.
func (c *Client) HistoryClear() (*HistoryClearResponse, error) {
	var resp HistoryClearResponse
	if err := c.client.Call("Zinc.HistoryClear", HistoryClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
