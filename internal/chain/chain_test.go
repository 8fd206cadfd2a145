package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txsentinel/internal/logging"
)

type fakeClient struct {
	mu         sync.Mutex
	head       uint64
	headErr    error
	blocks     map[uint64]*types.Block
	blockErr   error
	receipts   map[common.Hash]*types.Receipt
	receiptErr error
	senders    map[common.Hash]common.Address
	closed     bool
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeClient) BlockByNumber(_ context.Context, n *big.Int) (*types.Block, error) {
	if f.blockErr != nil {
		return nil, f.blockErr
	}
	b, ok := f.blocks[n.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return b, nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	r, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeClient) TransactionSender(_ context.Context, tx *types.Transaction, _ common.Hash, _ uint) (common.Address, error) {
	from, ok := f.senders[tx.Hash()]
	if !ok {
		return common.Address{}, ethereum.NotFound
	}
	return from, nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

var chainID = big.NewInt(1)

type account struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newAccount(t *testing.T) account {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return account{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func signedTx(t *testing.T, from account, nonce uint64, to *common.Address, wei int64) *types.Transaction {
	t.Helper()
	return signedTxOn(t, chainID, from, nonce, to, wei)
}

func signedTxOn(t *testing.T, id *big.Int, from account, nonce uint64, to *common.Address, wei int64) *types.Transaction {
	t.Helper()
	tx, err := types.SignNewTx(from.key, types.LatestSignerForChainID(id), &types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    big.NewInt(wei),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	require.NoError(t, err)
	return tx
}

func block(number, timestamp uint64, txs ...*types.Transaction) *types.Block {
	header := &types.Header{Number: new(big.Int).SetUint64(number), Time: timestamp}
	return types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: txs})
}

func newSource(t *testing.T, client *fakeClient, mutate func(*Config)) *Source {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg, logging.Discard(), WithClient(client))
	require.NoError(t, err)
	return s
}

func TestFetch_FiltersByWalletCaseInsensitive(t *testing.T) {
	wallet, other, third := newAccount(t), newAccount(t), newAccount(t)

	out := signedTx(t, wallet, 0, &other.addr, 1500)
	in := signedTx(t, other, 0, &wallet.addr, 0)
	unrelated := signedTx(t, third, 0, &other.addr, 7)
	creation := signedTx(t, wallet, 1, nil, 0)

	client := &fakeClient{
		head:   100,
		blocks: map[uint64]*types.Block{100: block(100, 1710000000, out, unrelated, in, creation)},
	}
	s := newSource(t, client, nil)

	lower := strings.ToLower(wallet.addr.Hex())
	txs, err := s.Fetch(context.Background(), lower)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, out.Hash().Hex(), txs[0].Hash)
	assert.Equal(t, wallet.addr.Hex(), txs[0].From)
	assert.Equal(t, other.addr.Hex(), txs[0].To)
	assert.Equal(t, "1500", txs[0].Value)
	assert.Equal(t, "21000", txs[0].GasUsed)
	assert.Equal(t, int64(1710000000), txs[0].BlockTimestamp)

	assert.Equal(t, in.Hash().Hex(), txs[1].Hash)
	assert.Equal(t, "", txs[2].To, "contract creation has no recipient")
}

func TestFetch_KeepsFirstMaxTransactions(t *testing.T) {
	wallet, other := newAccount(t), newAccount(t)

	var txs []*types.Transaction
	for i := uint64(0); i < 15; i++ {
		txs = append(txs, signedTx(t, wallet, i, &other.addr, int64(i)))
	}
	client := &fakeClient{head: 5, blocks: map[uint64]*types.Block{5: block(5, 1, txs...)}}
	s := newSource(t, client, nil)

	got, err := s.Fetch(context.Background(), wallet.addr.Hex())
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i, tx := range got {
		assert.Equal(t, txs[i].Hash().Hex(), tx.Hash)
	}
}

func TestFetch_ReceiptsReplacePlaceholder(t *testing.T) {
	wallet, other := newAccount(t), newAccount(t)
	a := signedTx(t, wallet, 0, &other.addr, 1)
	b := signedTx(t, wallet, 1, &other.addr, 2)

	client := &fakeClient{
		head:     9,
		blocks:   map[uint64]*types.Block{9: block(9, 1, a, b)},
		receipts: map[common.Hash]*types.Receipt{a.Hash(): {GasUsed: 250000}},
	}
	s := newSource(t, client, func(c *Config) { c.FetchReceipts = true })

	got, err := s.Fetch(context.Background(), wallet.addr.Hex())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "250000", got[0].GasUsed)
	assert.Equal(t, "21000", got[1].GasUsed, "missing receipt keeps placeholder")
}

func TestFetch_OtherChainUsesNodeSender(t *testing.T) {
	wallet, other := newAccount(t), newAccount(t)
	sepolia := big.NewInt(11155111)

	value, _ := new(big.Int).SetString("2000000000000000000", 10)
	tx, err := types.SignNewTx(wallet.key, types.LatestSignerForChainID(sepolia), &types.LegacyTx{
		To: &other.addr, Value: value, Gas: 21000, GasPrice: big.NewInt(1),
	})
	require.NoError(t, err)

	client := &fakeClient{
		head:    7,
		blocks:  map[uint64]*types.Block{7: block(7, 1, tx)},
		senders: map[common.Hash]common.Address{tx.Hash(): wallet.addr},
	}
	s := newSource(t, client, nil)

	got, err := s.Fetch(context.Background(), wallet.addr.Hex())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, wallet.addr.Hex(), got[0].From)
	assert.Equal(t, "2000000000000000000", got[0].Value)
}

func TestBlockWithTransactions_SkipsUnknownSender(t *testing.T) {
	wallet, other := newAccount(t), newAccount(t)
	foreign := signedTxOn(t, big.NewInt(5), wallet, 0, &other.addr, 1)
	local := signedTx(t, wallet, 1, &other.addr, 2)

	client := &fakeClient{head: 3, blocks: map[uint64]*types.Block{3: block(3, 1, foreign, local)}}
	s := newSource(t, client, nil)

	got, err := s.BlockWithTransactions(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, local.Hash().Hex(), got[0].Hash)
}

func TestRecent_FailureYieldsEmptyBatch(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"head lookup fails", &fakeClient{headErr: errors.New("dial tcp: refused")}},
		{"block lookup fails", &fakeClient{head: 3, blockErr: errors.New("rate limited")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSource(t, tt.client, nil)

			_, err := s.Fetch(context.Background(), "0xabc")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCollaborator)

			got := s.Recent(context.Background(), "0xabc")
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestBlockWithTransactions_UnknownBlock(t *testing.T) {
	s := newSource(t, &fakeClient{blocks: map[uint64]*types.Block{}}, nil)
	got, err := s.BlockWithTransactions(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestBlockNumber(t *testing.T) {
	s := newSource(t, &fakeClient{head: 19000000}, nil)
	n, err := s.LatestBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(19000000), n)
}

func TestNew_RequiresRPCURLWithoutClient(t *testing.T) {
	_, err := New(Config{}, logging.Discard())
	assert.ErrorIs(t, err, ErrCollaborator)
}

func TestClose(t *testing.T) {
	client := &fakeClient{}
	s := newSource(t, client, nil)
	s.Close()
	assert.True(t, client.closed)
}

func TestFetchError(t *testing.T) {
	err := &FetchError{Op: "block_number", Err: context.DeadlineExceeded}
	assert.Contains(t, err.Error(), "block_number")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrCollaborator)
}
