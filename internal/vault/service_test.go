package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/justinabrahms/gomokuvault/internal/ledger/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var me = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func requireVaultError(t *testing.T, err error, message string) *Error {
	t.Helper()
	var vaultErr *Error
	require.ErrorAs(t, err, &vaultErr)
	assert.Equal(t, message, vaultErr.Message)
	return vaultErr
}

func TestRegister(t *testing.T) {
	fake := ledgertest.New(me)
	svc := New(fake)

	require.NoError(t, svc.Register(context.Background(), "alice", "pw", "pw"))

	info, err := svc.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name                        string
		username, password, confirm string
		want                        string
	}{
		{"missing username", "", "pw", "pw", "Please fill in all fields"},
		{"missing password", "alice", "", "pw", "Please fill in all fields"},
		{"missing confirm", "alice", "pw", "", "Please fill in all fields"},
		{"mismatch", "alice", "pw", "wp", "Passwords do not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := ledgertest.New(me)
			err := New(fake).Register(context.Background(), tt.username, tt.password, tt.confirm)
			vaultErr := requireVaultError(t, err, tt.want)
			assert.ErrorIs(t, vaultErr, ErrInvalidInput)
			assert.Equal(t, 0, fake.Calls("registerUser"))
		})
	}
}

func TestRegister_AlreadyRegistered(t *testing.T) {
	fake := ledgertest.New(me)
	svc := New(fake)
	require.NoError(t, svc.Register(context.Background(), "alice", "pw", "pw"))

	err := svc.Register(context.Background(), "alice", "pw", "pw")
	requireVaultError(t, err, "You have already registered with this address")
}

func TestLogin(t *testing.T) {
	fake := ledgertest.New(me)
	svc := New(fake)
	require.NoError(t, svc.Register(context.Background(), "alice", "pw", "pw"))

	account, err := svc.Login(context.Background(), "pw")
	require.NoError(t, err)
	assert.Equal(t, me, account)
	assert.True(t, fake.LoggedIn())
}

func TestLogin_UsesRevertReason(t *testing.T) {
	fake := ledgertest.New(me)
	svc := New(fake)
	require.NoError(t, svc.Register(context.Background(), "alice", "pw", "pw"))

	_, err := svc.Login(context.Background(), "wrong")
	requireVaultError(t, err, "Invalid credentials")
	assert.False(t, fake.LoggedIn())
}

func TestLogin_FallbackWithoutRevertReason(t *testing.T) {
	fake := ledgertest.New(me)
	fake.FailSubmit("login", errors.New("dial tcp 127.0.0.1:8545: connection refused"))

	_, err := New(fake).Login(context.Background(), "pw")
	requireVaultError(t, err, "Login failed, please check password or if account is registered")
}

func TestLogout(t *testing.T) {
	fake := ledgertest.New(me)
	svc := New(fake)
	require.NoError(t, svc.Register(context.Background(), "alice", "pw", "pw"))
	_, err := svc.Login(context.Background(), "pw")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background()))
	assert.False(t, fake.LoggedIn())

	requireVaultError(t, svc.Logout(context.Background()), "Not logged in")
}

func TestWithdraw(t *testing.T) {
	fake := ledgertest.New(me)
	fake.SetUser(me, ledger.UserInfo{Username: "alice", Balance: big.NewInt(2e18)})
	svc := New(fake)

	require.NoError(t, svc.Withdraw(context.Background(), "0.5"))

	info, err := svc.UserInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.5", ledger.FormatEther(info.Balance))

	requireVaultError(t, svc.Withdraw(context.Background(), "10"), "Insufficient balance")
}

func TestWithdraw_RejectsInvalidAmount(t *testing.T) {
	fake := ledgertest.New(me)
	svc := New(fake)

	for _, amount := range []string{"", "0", "-1", "1e18", "abc"} {
		requireVaultError(t, svc.Withdraw(context.Background(), amount), "Please enter a valid amount")
	}
	assert.Equal(t, 0, fake.Calls("withdraw"))
}

func TestAfterWriteRunsOnSuccessOnly(t *testing.T) {
	fake := ledgertest.New(me)
	var refreshed int
	svc := New(fake, WithAfterWrite(func(ctx context.Context) error {
		refreshed++
		return errors.New("ignored")
	}))

	require.NoError(t, svc.Register(context.Background(), "alice", "pw", "pw"))
	assert.Equal(t, 1, refreshed)

	_, err := svc.Login(context.Background(), "wrong")
	require.Error(t, err)
	assert.Equal(t, 1, refreshed)
}

func TestUserInfoFailure(t *testing.T) {
	fake := ledgertest.New(me)
	fake.FailUserInfo(errors.New("execution reverted: Not registered"))

	_, err := New(fake).UserInfo(context.Background())
	requireVaultError(t, err, "Not registered")
}
