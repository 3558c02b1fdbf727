package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ckbridge/ICRPC"
	"ckbridge/config"
	"ckbridge/hmacauth"
	"ckbridge/identity"
	"ckbridge/orchestrator"
	"ckbridge/registry"
	"ckbridge/types"
)

const (
	testCaller    = "2vxsx-fae"
	testRecipient = "0x1111111111111111111111111111111111111111"
)

type stubVerifier struct {
	tx  *types.VerifiedTransaction
	err error
	raw string

	assets []string
}

func (s *stubVerifier) Verify(_ context.Context, asset types.Asset, _ string) (*types.VerifiedTransaction, error) {
	s.assets = append(s.assets, asset.Symbol)
	return s.tx, s.err
}

func (s *stubVerifier) RawReceipt(context.Context, string) (string, error) {
	return s.raw, nil
}

type stubBridge struct {
	err error

	withdrawals []orchestrator.WithdrawalRequest
	approvals   []*big.Int
	transfers   []identity.Account
	balanceOf   []identity.Account
	callers     []string
}

func (s *stubBridge) Withdraw(_ context.Context, caller identity.Principal, req orchestrator.WithdrawalRequest) (*orchestrator.WithdrawalReceipt, error) {
	s.callers = append(s.callers, caller.String())
	s.withdrawals = append(s.withdrawals, req)
	if s.err != nil {
		return nil, s.err
	}
	return &orchestrator.WithdrawalReceipt{OperationID: "op-1", Asset: req.Asset, WithdrawBlockIndex: big.NewInt(31)}, nil
}

func (s *stubBridge) Approve(_ context.Context, caller identity.Principal, _ string, amount *big.Int) (*big.Int, error) {
	s.callers = append(s.callers, caller.String())
	s.approvals = append(s.approvals, amount)
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(21), nil
}

func (s *stubBridge) Transfer(_ context.Context, caller identity.Principal, _ string, to identity.Account, _ *big.Int) (*big.Int, error) {
	s.callers = append(s.callers, caller.String())
	s.transfers = append(s.transfers, to)
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(11), nil
}

func (s *stubBridge) BalanceOf(_ context.Context, _ string, account identity.Account) (*big.Int, error) {
	s.balanceOf = append(s.balanceOf, account)
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(1000), nil
}

func (s *stubBridge) ServiceBalance(context.Context, string) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(5000), nil
}

func (s *stubBridge) DepositAddress() (string, error) {
	return "0x1d0a", s.err
}

func (s *stubBridge) Operations(_ context.Context, status string) ([]*types.WithdrawalOperation, error) {
	if !types.IsWithdrawalStatus(status) {
		return nil, types.Errorf(types.ErrCodeInvalidArgument, "unknown status %q", status)
	}
	return []*types.WithdrawalOperation{{ID: "op-1", Status: status, Asset: config.AssetCkSepoliaUSDC}}, nil
}

type fixture struct {
	api      *API
	bridge   *stubBridge
	verifier *stubVerifier
	statuses *registry.MemoryStatusStore
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		bridge:   &stubBridge{},
		verifier: &stubVerifier{raw: `{"Err":"receipt not found"}`},
		statuses: registry.NewMemoryStatusStore(),
	}
	f.api = &API{
		Identities:   identity.NewRegistry(config.Identities),
		Assets:       config.Assets,
		DefaultAsset: config.DefaultAsset,
		Verifier:     f.verifier,
		Bridge:       f.bridge,
		Registry:     registry.New(registry.NewMemoryStore(), []string{config.AssetCkSepoliaETH, config.AssetCkSepoliaUSDC}),
		Statuses:     f.statuses,
		Health: map[string]func(ctx context.Context) error{
			"store": func(context.Context) error { return nil },
		},
		Log: zerolog.Nop(),
	}

	r := chi.NewRouter()
	r.Get("/identity", f.api.ListIdentities)
	r.Get("/identity/{name}", f.api.GetIdentity)
	r.Get("/deposit-address", f.api.DepositAddress)
	r.Get("/balance/{asset}", f.api.ServiceBalance)
	r.Get("/balance/{asset}/{principal}", f.api.Balance)
	r.Get("/verify/{hash}", f.api.Verify)
	r.Get("/receipt/{hash}", f.api.Receipt)
	r.Get("/hashes/{asset}", f.api.ListHashes)
	r.Post("/hashes/{asset}", f.api.RecordHash)
	r.Get("/hashes/{asset}/status", f.api.HashStatuses)
	r.Get("/stats/{status}", f.api.GetOperations)
	r.Get("/health", f.api.HealthCheck)
	r.Post("/transfer/{asset}", f.api.Transfer)
	r.Post("/approve/{asset}", f.api.Approve)
	r.Post("/withdraw/{asset}", f.api.Withdraw)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, caller string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		req = req.WithContext(hmacauth.WithCaller(req.Context(), identity.MustParsePrincipal(caller)))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestIdentityRoutes(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/identity/ck_sepolia_usdc_ledger", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"name":"ck_sepolia_usdc_ledger","value":"yfumr-cyaaa-aaaar-qaela-cai"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/identity/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/identity", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []APIIdentityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, len(config.Identities))
}

func TestDepositAddress(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/deposit-address", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"address":"0x1d0a"}`, rec.Body.String())
}

func TestBalance(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/balance/ckSepoliaUSDC/"+testCaller, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"asset":"ckSepoliaUSDC","account":"2vxsx-fae","balance":"1000"}`, rec.Body.String())
	require.Len(t, f.bridge.balanceOf, 1)
	assert.Nil(t, f.bridge.balanceOf[0].Subaccount)

	rec = f.do(t, http.MethodGet, "/balance/ckSepoliaUSDC/not-a-principal", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/balance/ckSepoliaETH", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":"5000"`)

	f.bridge.err = types.NewError(types.ErrCodeTransport, "cannot read balance", &ICRPC.TransportError{Method: "icrc1_balance_of", Err: errors.New("timeout")})
	rec = f.do(t, http.MethodGet, "/balance/ckSepoliaETH", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestVerifyUsesDefaultAsset(t *testing.T) {
	f := newFixture()
	f.verifier.tx = &types.VerifiedTransaction{TransactionHash: "0xabc", Status: "1", To: config.CkSepoliaETHMinterAddress}

	rec := f.do(t, http.MethodGet, "/verify/0xabc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"transaction_hash":"0xabc"`)

	rec = f.do(t, http.MethodGet, "/verify/0xabc?asset=ckSepoliaUSDC", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{config.AssetCkSepoliaETH, config.AssetCkSepoliaUSDC}, f.verifier.assets)

	rec = f.do(t, http.MethodGet, "/verify/0xabc?asset=DOGE", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, types.ErrCodeUnknownAsset, decodeError(t, rec).Code)
}

func TestVerifyErrorStatuses(t *testing.T) {
	cases := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrCodeTransport, http.StatusBadGateway},
		{types.ErrCodeInconsistentSources, http.StatusConflict},
		{types.ErrCodeReceiptNotFound, http.StatusNotFound},
		{types.ErrCodeTransactionFailed, http.StatusUnprocessableEntity},
		{types.ErrCodeDestinationMismatch, http.StatusUnprocessableEntity},
		{types.ErrCodeInvalidArgument, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			f := newFixture()
			f.verifier.err = types.Errorf(tc.code, "rejected").WithAsset(config.AssetCkSepoliaETH)

			rec := f.do(t, http.MethodGet, "/verify/0xabc", "", "")
			assert.Equal(t, tc.want, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tc.code, resp.Code)
			assert.Equal(t, config.AssetCkSepoliaETH, resp.Asset)
		})
	}
}

func TestReceiptIsPassedThrough(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/receipt/0xabc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"Err":"receipt not found"}`, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestHashRoutes(t *testing.T) {
	f := newFixture()

	for _, h := range []string{"0x02", "0x01", "0x02"} {
		rec := f.do(t, http.MethodPost, "/hashes/ckSepoliaETH", `{"hash":"`+h+`"}`, "")
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := f.do(t, http.MethodGet, "/hashes/ckSepoliaETH", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"asset":"ckSepoliaETH","hashes":["0x02","0x01","0x02"]}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/hashes/ckSepoliaUSDC", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"asset":"ckSepoliaUSDC","hashes":[]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/hashes/DOGE", `{"hash":"0x01"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/hashes/ckSepoliaETH", `{"hash":""}`, "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/hashes/ckSepoliaETH", `{`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHashStatusRoute(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.statuses.SetHashStatus(context.Background(), config.AssetCkSepoliaETH, types.HashStatus{Hash: "0x01", Result: "verified", CheckedAt: 7}))

	rec := f.do(t, http.MethodGet, "/hashes/ckSepoliaETH/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"result":"verified"`)

	rec = f.do(t, http.MethodGet, "/hashes/ckSepoliaUSDC/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"statuses":[]`)

	rec = f.do(t, http.MethodGet, "/hashes/DOGE/status", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperationsRoute(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/stats/approved", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"op-1"`)

	rec = f.do(t, http.MethodGet, "/stats/failed", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutatingRoutesNeedCaller(t *testing.T) {
	f := newFixture()
	for _, path := range []string{"/transfer/ckSepoliaETH", "/approve/ckSepoliaUSDC", "/withdraw/ckSepoliaUSDC"} {
		rec := f.do(t, http.MethodPost, path, `{"amount":"1","to":"2vxsx-fae","recipient":"`+testRecipient+`"}`, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	assert.Empty(t, f.bridge.callers)
}

func TestWithdraw(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/withdraw/ckSepoliaUSDC", `{"amount":"500","recipient":"`+testRecipient+`"}`, testCaller)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"operationId":"op-1","asset":"ckSepoliaUSDC","withdrawBlockIndex":31}`, rec.Body.String())
	require.Len(t, f.bridge.withdrawals, 1)
	assert.Equal(t, "500", f.bridge.withdrawals[0].Amount.String())
	assert.Equal(t, []string{testCaller}, f.bridge.callers)

	// numeric amounts are accepted as well
	rec = f.do(t, http.MethodPost, "/withdraw/ckSepoliaUSDC", `{"amount":7,"recipient":"`+testRecipient+`"}`, testCaller)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWithdrawPassesZeroAmountOn(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/withdraw/ckSepoliaUSDC", `{"amount":"0","recipient":"`+testRecipient+`"}`, testCaller)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.bridge.withdrawals, 1)
	assert.Equal(t, "0", f.bridge.withdrawals[0].Amount.String())
}

func TestWithdrawRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"recipient": `{"amount":"500","recipient":"0x1234"}`,
		"amount":    `{"amount":"-3","recipient":"` + testRecipient + `"}`,
		"fraction":  `{"amount":"1.5","recipient":"` + testRecipient + `"}`,
		"json":      `{"amount":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(t, http.MethodPost, "/withdraw/ckSepoliaUSDC", body, testCaller)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, f.bridge.withdrawals)
		})
	}
}

func TestWithdrawSurfacesRejection(t *testing.T) {
	f := newFixture()
	reject := &ICRPC.RejectError{Method: "icrc2_approve", Kind: "InsufficientFunds", Payload: json.RawMessage(`{"balance":10}`)}
	f.bridge.err = types.NewError(types.ErrCodeApprovalFailed, "ledger rejected approval", reject).
		WithAsset(config.AssetCkSepoliaUSDC).
		WithContext("operationId", "op-9")

	rec := f.do(t, http.MethodPost, "/withdraw/ckSepoliaUSDC", `{"amount":"500","recipient":"`+testRecipient+`"}`, testCaller)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, `"APPROVAL_FAILED"`, string(body["code"]))
	assert.JSONEq(t, `{"InsufficientFunds":{"balance":10}}`, string(body["reject"]))
	assert.JSONEq(t, `{"operationId":"op-9"}`, string(body["context"]))
}

func TestUnauthorizedCallerIsForbidden(t *testing.T) {
	f := newFixture()
	f.bridge.err = types.Errorf(types.ErrCodeUnauthorized, "native withdrawals are restricted to controllers")

	rec := f.do(t, http.MethodPost, "/withdraw/ckSepoliaETH", `{"amount":"500","recipient":"`+testRecipient+`"}`, testCaller)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApproveAndTransfer(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/approve/ckSepoliaUSDC", `{"amount":"250"}`, testCaller)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","asset":"ckSepoliaUSDC","blockIndex":"21"}`, rec.Body.String())
	require.Len(t, f.bridge.approvals, 1)
	assert.Equal(t, "250", f.bridge.approvals[0].String())

	rec = f.do(t, http.MethodPost, "/transfer/ckSepoliaETH", `{"to":"ryjl3-tyaaa-aaaaa-aaaba-cai-yvk7a6i.1","amount":"9"}`, testCaller)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.bridge.transfers, 1)
	require.NotNil(t, f.bridge.transfers[0].Subaccount)
	assert.Equal(t, byte(1), f.bridge.transfers[0].Subaccount[31])

	rec = f.do(t, http.MethodPost, "/transfer/ckSepoliaETH", `{"to":"bogus","amount":"9"}`, testCaller)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok"}}`, rec.Body.String())

	f.api.Health["evm"] = func(context.Context) error { return errors.New("no providers") }
	rec = f.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"evm":"no providers"`)
}
