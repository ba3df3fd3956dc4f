package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

type accountFunc func(ctx context.Context) (common.Address, error)

func (f accountFunc) Account(ctx context.Context) (common.Address, error) {
	return f(ctx)
}

func TestAccountLabel(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	ok := accountFunc(func(context.Context) (common.Address, error) { return addr, nil })
	assert.Equal(t, addr.Hex(), accountLabel(context.Background(), ok))

	broken := accountFunc(func(context.Context) (common.Address, error) {
		return common.Address{}, errors.New("keystore locked")
	})
	assert.Equal(t, "unknown", accountLabel(context.Background(), broken))
}

func TestRefreshInterval(t *testing.T) {
	assert.Equal(t, time.Duration(-1), refreshInterval(0))
	assert.Equal(t, 15*time.Second, refreshInterval(15*time.Second))
}
