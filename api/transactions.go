package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

func (c *Client) Balance(ctx context.Context) (*Balance, error) {
	var b Balance
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "api", "transactions", "balance"), nil, &b); err != nil {
		return nil, fmt.Errorf("[Client.Balance] %w", err)
	}
	return &b, nil
}

// InitiateTransfer starts a two-phase transfer. The returned transaction is
// PENDING until confirmed or cancelled.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transaction, error) {
	return c.transfer(ctx, "InitiateTransfer", "initiate", req)
}

// Transfer moves money in a single step
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*Transaction, error) {
	return c.transfer(ctx, "Transfer", "transfer", req)
}

func (c *Client) transfer(ctx context.Context, method, action string, req TransferRequest) (*Transaction, error) {
	var tx Transaction
	if err := c.do(ctx, http.MethodPost, c.endpoint(nil, "api", "transactions", action), req, &tx); err != nil {
		return nil, fmt.Errorf("[Client.%s] %w", method, err)
	}
	return &tx, nil
}

func (c *Client) ConfirmTransfer(ctx context.Context, id int64) (*Transaction, error) {
	return c.settle(ctx, "ConfirmTransfer", "confirm", id)
}

func (c *Client) CancelTransfer(ctx context.Context, id int64) (*Transaction, error) {
	return c.settle(ctx, "CancelTransfer", "cancel", id)
}

func (c *Client) settle(ctx context.Context, method, action string, id int64) (*Transaction, error) {
	var tx Transaction
	target := c.endpoint(nil, "api", "transactions", action, strconv.FormatInt(id, 10))
	if err := c.do(ctx, http.MethodPost, target, nil, &tx); err != nil {
		return nil, fmt.Errorf("[Client.%s] %w", method, err)
	}
	return &tx, nil
}

// History lists the signed-in user's transactions, newest first as returned
// by the backend.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.do(ctx, http.MethodGet, c.endpoint(nil, "api", "transactions", "history"), nil, &entries); err != nil {
		return nil, fmt.Errorf("[Client.History] %w", err)
	}
	return entries, nil
}

func (c *Client) Transaction(ctx context.Context, id int64) (*Transaction, error) {
	var tx Transaction
	target := c.endpoint(nil, "api", "transactions", strconv.FormatInt(id, 10))
	if err := c.do(ctx, http.MethodGet, target, nil, &tx); err != nil {
		return nil, fmt.Errorf("[Client.Transaction] %w", err)
	}
	return &tx, nil
}
