package worker

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/ledger"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// ── Mock ledger ───────────────────────────────────────────────────────────────

type updateCall struct {
	spender common.Address
	id      common.Hash
	upd     voucher.Update
}

type issueCall struct {
	spender  common.Address
	balance  *big.Int
	duration uint32
	programs []common.Address
}

type mockLedger struct {
	mu        sync.Mutex
	key       *ecdsa.PrivateKey
	status    ledger.TxStatus // terminal status reported by SignAndSubmit
	submitErr error
	issueErr  error
	silent    bool          // never report a terminal status
	block     chan struct{} // SignAndSubmit waits on it when non-nil
	entered   chan struct{}

	issues  []issueCall
	updates []updateCall
	batches [][]ledger.Operation
	signed  int
	nextID  int64
}

func newMockLedger(t *testing.T) *mockLedger {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return &mockLedger{key: key, status: ledger.StatusFinalized, entered: make(chan struct{}, 16)}
}

func (m *mockLedger) IssueVoucher(spender common.Address, balance *big.Int, duration uint32, programs []common.Address) (ledger.Issued, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issueErr != nil {
		return ledger.Issued{}, m.issueErr
	}
	m.issues = append(m.issues, issueCall{spender, balance, duration, programs})
	m.nextID++
	id := common.BigToHash(big.NewInt(0x1000 + m.nextID))
	op := ledger.Operation{Kind: ledger.OpIssue, Spender: spender, VoucherID: id, CallData: []byte("issue")}
	return ledger.Issued{Operation: op, VoucherID: id}, nil
}

func (m *mockLedger) UpdateVoucher(spender common.Address, id common.Hash, upd voucher.Update) (ledger.Operation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, updateCall{spender, id, upd})
	return ledger.Operation{Kind: ledger.OpUpdate, Spender: spender, VoucherID: id, CallData: []byte("update")}, nil
}

func (m *mockLedger) ForceBatch(ops []ledger.Operation) (ledger.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]ledger.Operation(nil), ops...))
	return ledger.Batch{Operations: len(ops)}, nil
}

func (m *mockLedger) SignAndSubmit(ctx context.Context, _ *ecdsa.PrivateKey, _ ledger.Batch, onStatus func(ledger.TxStatus)) error {
	m.mu.Lock()
	m.signed++
	block, status, err, silent := m.block, m.status, m.submitErr, m.silent
	m.mu.Unlock()

	select {
	case m.entered <- struct{}{}:
	default:
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	onStatus(ledger.StatusBroadcast)
	if silent {
		return nil
	}
	onStatus(ledger.StatusInBlock)
	onStatus(status)
	return nil
}

func (m *mockLedger) SponsorKey() *ecdsa.PrivateKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key
}

func (m *mockLedger) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// ── Mock journal ──────────────────────────────────────────────────────────────

type mockJournal struct {
	mu      sync.Mutex
	batches []FailedBatch
}

func (j *mockJournal) RecordFailedBatch(_ context.Context, fb FailedBatch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.batches = append(j.batches, fb)
	return nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	userA   = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	userB   = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	program = common.HexToAddress("0x1111111111111111111111111111111111111111")
	existID = common.HexToHash("0xf2")
)

func testPolicy() voucher.Policy {
	return voucher.Policy{
		Program:         program,
		TokenUnit:       big.NewInt(1),
		InitialTokens:   3,
		InitialDuration: 600,
		TopUpTokens:     2,
		RenewalBlocks:   1200,
		MinTokens:       1,
	}
}

func newTestWorker(t *testing.T, l Ledger, opts Options) *Worker {
	t.Helper()
	opts.Policy = testPolicy()
	if opts.PollInterval == 0 {
		opts.PollInterval = 5 * time.Millisecond
	}
	w := New(l, opts, zap.NewNop())
	t.Cleanup(w.Stop)
	return w
}

func start(t *testing.T, w *Worker) {
	t.Helper()
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func wait(t *testing.T, f *Future) (common.Hash, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	id, err := f.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		t.Fatalf("future %s did not settle", f.ID())
	}
	return id, err
}

func waitEntered(t *testing.T, m *mockLedger) {
	t.Helper()
	select {
	case <-m.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("ledger SignAndSubmit was not called")
	}
}

// ── BatchBuilder ──────────────────────────────────────────────────────────────

func TestSubmit_ConflictingFlags_BadRequest_NoOperation(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})

	var futures []*Future
	for _, r := range []voucher.Request{
		{User: userA, CreateVoucher: true, AddTokens: true},
		{User: userA, CreateVoucher: true, RenewVoucher: true},
		{User: userB, CreateVoucher: true, AddTokens: true, RenewVoucher: true},
	} {
		futures = append(futures, w.Submit(r))
	}
	start(t, w)

	for _, f := range futures {
		if _, err := wait(t, f); !errors.Is(err, voucher.ErrBadRequest) {
			t.Fatalf("got %v want ErrBadRequest", err)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.issues) != 0 || len(l.updates) != 0 {
		t.Errorf("no operation may be built for bad requests: issues=%d updates=%d", len(l.issues), len(l.updates))
	}
}

func TestCycle_AllInvalid_StillSubmitsEmptyBatch(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})

	f := w.Submit(voucher.Request{User: userA, CreateVoucher: true, AddTokens: true})
	start(t, w)

	if _, err := wait(t, f); !errors.Is(err, voucher.ErrBadRequest) {
		t.Fatalf("got %v want ErrBadRequest", err)
	}
	waitEntered(t, l)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.batches) != 1 {
		t.Fatalf("batches: got %d want 1", len(l.batches))
	}
	if len(l.batches[0]) != 0 {
		t.Errorf("batch ops: got %d want 0", len(l.batches[0]))
	}
}

func TestCycle_LoneCreate_ResolvesToIssuedID(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})
	start(t, w)

	id, err := wait(t, w.Submit(voucher.NewCreate(userA)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.issues) != 1 {
		t.Fatalf("issue calls: got %d want 1", len(l.issues))
	}
	iss := l.issues[0]
	if iss.spender != userA || iss.balance.Int64() != 3 || iss.duration != 600 {
		t.Errorf("issue args: got %+v", iss)
	}
	if len(iss.programs) != 1 || iss.programs[0] != program {
		t.Errorf("allow-list: got %v want [%s]", iss.programs, program.Hex())
	}
	if len(l.batches) != 1 || len(l.batches[0]) != 1 {
		t.Fatalf("want exactly one batch with one op, got %v", l.batches)
	}
	if want := l.batches[0][0].VoucherID; id != want {
		t.Errorf("voucher id: got %s want %s", id.Hex(), want.Hex())
	}
}

func TestCycle_UpdatePayloads(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})

	fTop := w.Submit(voucher.NewUpdate(userA, existID, true, false))
	fRenew := w.Submit(voucher.NewUpdate(userA, existID, false, true))
	fBoth := w.Submit(voucher.NewUpdate(userA, existID, true, true))
	start(t, w)

	for _, f := range []*Future{fTop, fRenew, fBoth} {
		id, err := wait(t, f)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if id != existID {
			t.Errorf("update must resolve to the unchanged voucher id, got %s", id.Hex())
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.updates) != 3 {
		t.Fatalf("update calls: got %d want 3", len(l.updates))
	}
	top, renew, both := l.updates[0].upd, l.updates[1].upd, l.updates[2].upd

	if top.Prolongs() || top.BalanceTopUp.Int64() != 2 {
		t.Errorf("addTokens only: got %+v want {balanceTopUp=2}", top)
	}
	if renew.TopsUp() || renew.ProlongDuration != 1200 {
		t.Errorf("renew only: got %+v want {prolongDuration=1200}", renew)
	}
	if both.ProlongDuration != 1200 || both.BalanceTopUp.Int64() != 2 {
		t.Errorf("both: got %+v want {prolongDuration=1200, balanceTopUp=2}", both)
	}
}

func TestCycle_NoopUpdate_ResolvesImmediately(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})
	start(t, w)

	id, err := wait(t, w.Submit(voucher.NewUpdate(userA, existID, false, false)))
	if err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if id != existID {
		t.Errorf("got %s want %s", id.Hex(), existID.Hex())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.updates) != 0 {
		t.Errorf("no-op update must not build an operation")
	}
}

func TestCycle_UpdateWithoutVoucherID_BadRequest(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})
	start(t, w)

	_, err := wait(t, w.Submit(voucher.Request{User: userA, AddTokens: true}))
	if !errors.Is(err, voucher.ErrBadRequest) {
		t.Fatalf("got %v want ErrBadRequest", err)
	}
}

func TestUpdateOp_KindWithoutPayload_BadRequest(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})

	for _, k := range []voucher.IntentKind{voucher.IntentNone, voucher.IntentCreate, voucher.IntentKind(99)} {
		_, err := w.updateOp(userA, voucher.Intent{Kind: k, VoucherID: existID})
		if !errors.Is(err, voucher.ErrBadRequest) {
			t.Errorf("%s: got %v want ErrBadRequest", k, err)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.updates) != 0 {
		t.Errorf("updates: got %d want 0", len(l.updates))
	}
}

func TestCycle_IssueFailure_RejectsOnlyThatRequest(t *testing.T) {
	l := newMockLedger(t)
	l.issueErr = errors.New("rpc unavailable")
	w := newTestWorker(t, l, Options{})

	fCreate := w.Submit(voucher.NewCreate(userA))
	fUpdate := w.Submit(voucher.NewUpdate(userB, existID, true, false))
	start(t, w)

	_, err := wait(t, fCreate)
	var ue *voucher.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("create: got %v want *UpstreamError", err)
	}
	if _, err := wait(t, fUpdate); err != nil {
		t.Fatalf("sibling update must still succeed: %v", err)
	}
}

// ── Batching ──────────────────────────────────────────────────────────────────

func TestCycle_TwoRequests_OneAtomicSubmissionInOrder(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})

	f1 := w.Submit(voucher.NewCreate(userA))
	f2 := w.Submit(voucher.NewUpdate(userB, existID, true, true))
	start(t, w)

	id1, err := wait(t, f1)
	if err != nil {
		t.Fatalf("future1: %v", err)
	}
	id2, err := wait(t, f2)
	if err != nil {
		t.Fatalf("future2: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.signed != 1 || len(l.batches) != 1 {
		t.Fatalf("want one atomic submission, got signed=%d batches=%d", l.signed, len(l.batches))
	}
	ops := l.batches[0]
	if len(ops) != 2 {
		t.Fatalf("ops: got %d want 2", len(ops))
	}
	if ops[0].Kind != ledger.OpIssue || ops[1].Kind != ledger.OpUpdate {
		t.Errorf("ops out of enqueue order: %s, %s", ops[0].Kind, ops[1].Kind)
	}
	if id1 != ops[0].VoucherID {
		t.Errorf("future1: got %s want newly issued %s", id1.Hex(), ops[0].VoucherID.Hex())
	}
	if id2 != existID {
		t.Errorf("future2: got %s want %s", id2.Hex(), existID.Hex())
	}
}

func TestCycle_Finalized_SettlesExactlyOnce(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})
	start(t, w)

	f := w.Submit(voucher.NewCreate(userA))
	if _, err := wait(t, f); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := w.Pending(); n != 0 {
		t.Errorf("correlation map: got %d entries want 0", n)
	}
	if w.resolve(f.ID(), common.Hash{}) {
		t.Error("second resolution must be a no-op")
	}
	if w.reject(f.ID(), errors.New("late")) {
		t.Error("rejection after resolution must be a no-op")
	}
	// The first outcome stands.
	if _, err := f.Wait(context.Background()); err != nil {
		t.Errorf("outcome changed after settle: %v", err)
	}
}

func TestCycle_FailedStatuses_RejectAllParticipants(t *testing.T) {
	for _, st := range []ledger.TxStatus{ledger.StatusDropped, ledger.StatusInvalid, ledger.StatusUsurped} {
		t.Run(st.String(), func(t *testing.T) {
			l := newMockLedger(t)
			l.status = st
			j := &mockJournal{}
			w := newTestWorker(t, l, Options{Journal: j})

			f1 := w.Submit(voucher.NewCreate(userA))
			f2 := w.Submit(voucher.NewUpdate(userB, existID, false, true))
			start(t, w)

			for _, f := range []*Future{f1, f2} {
				if _, err := wait(t, f); !errors.Is(err, voucher.ErrTransactionFailed) {
					t.Fatalf("got %v want ErrTransactionFailed", err)
				}
			}
			if w.Pending() != 0 {
				t.Errorf("failed participants must leave the correlation map")
			}

			j.mu.Lock()
			defer j.mu.Unlock()
			if len(j.batches) != 1 || len(j.batches[0].Entries) != 2 {
				t.Fatalf("journal: got %+v", j.batches)
			}
			if j.batches[0].Entries[0].Kind != "create" || j.batches[0].Entries[1].Kind != "renew" {
				t.Errorf("journal kinds: got %+v", j.batches[0].Entries)
			}
		})
	}
}

func TestCycle_SubmitError_RejectsAll(t *testing.T) {
	l := newMockLedger(t)
	l.submitErr = errors.New("connection reset")
	w := newTestWorker(t, l, Options{})
	start(t, w)

	_, err := wait(t, w.Submit(voucher.NewCreate(userA)))
	if !errors.Is(err, voucher.ErrTransactionFailed) {
		t.Fatalf("got %v want ErrTransactionFailed", err)
	}
}

func TestCycle_MissingSponsorKey_ConfigurationError_WorkerSurvives(t *testing.T) {
	l := newMockLedger(t)
	key := l.key
	l.key = nil
	w := newTestWorker(t, l, Options{})
	start(t, w)

	_, err := wait(t, w.Submit(voucher.NewCreate(userA)))
	if !errors.Is(err, voucher.ErrConfiguration) {
		t.Fatalf("got %v want ErrConfiguration", err)
	}

	l.mu.Lock()
	l.key = key
	l.mu.Unlock()

	if _, err := wait(t, w.Submit(voucher.NewCreate(userA))); err != nil {
		t.Fatalf("next cycle should succeed once the key is set: %v", err)
	}
	if w.State() == StateStopped {
		t.Error("configuration error must not stop the worker")
	}
}

func TestCycle_SubmitTimeout_TransactionFailed(t *testing.T) {
	l := newMockLedger(t)
	l.silent = true
	w := newTestWorker(t, l, Options{SubmitTimeout: 20 * time.Millisecond})
	start(t, w)

	_, err := wait(t, w.Submit(voucher.NewCreate(userA)))
	if !errors.Is(err, voucher.ErrTransactionFailed) {
		t.Fatalf("got %v want ErrTransactionFailed", err)
	}
}

// ── Loop & lifecycle ──────────────────────────────────────────────────────────

func TestLoop_EnqueueNotBlockedBySubmission_StopRejectsQueued(t *testing.T) {
	l := newMockLedger(t)
	l.block = make(chan struct{})
	w := newTestWorker(t, l, Options{})
	start(t, w)

	inFlight := w.Submit(voucher.NewCreate(userA))
	waitEntered(t, l)
	if w.State() != StateRunning {
		t.Errorf("state during submission: got %s want running", w.State())
	}

	// Enqueue returns immediately while the cycle waits on the ledger.
	done := make(chan *Future, 1)
	go func() { done <- w.Submit(voucher.NewCreate(userB)) }()
	var queuedF *Future
	select {
	case queuedF = <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on an in-flight submission")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight cycle finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(l.block)
	<-stopped

	if _, err := wait(t, inFlight); err != nil {
		t.Errorf("in-flight request must finish: %v", err)
	}
	if _, err := wait(t, queuedF); !errors.Is(err, voucher.ErrShutdown) {
		t.Errorf("queued request: got %v want ErrShutdown", err)
	}
	if w.State() != StateStopped {
		t.Errorf("state: got %s want stopped", w.State())
	}
	if w.Pending() != 0 {
		t.Errorf("pending after stop: got %d want 0", w.Pending())
	}
}

func TestLoop_SubmitAfterStop_Rejected(t *testing.T) {
	w := newTestWorker(t, newMockLedger(t), Options{})
	start(t, w)
	w.Stop()

	if _, err := wait(t, w.Submit(voucher.NewCreate(userA))); !errors.Is(err, voucher.ErrShutdown) {
		t.Fatalf("got %v want ErrShutdown", err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("restart: got %v want ErrAlreadyStarted", err)
	}
}

func TestLoop_StopWithoutStart(t *testing.T) {
	w := newTestWorker(t, newMockLedger(t), Options{})
	f := w.Submit(voucher.NewCreate(userA))
	w.Stop()
	if _, err := wait(t, f); !errors.Is(err, voucher.ErrShutdown) {
		t.Fatalf("got %v want ErrShutdown", err)
	}
}

func TestLoop_ContextCancel_StopsWorker(t *testing.T) {
	l := newMockLedger(t)
	l.block = make(chan struct{})
	w := newTestWorker(t, l, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	inFlight := w.Submit(voucher.NewCreate(userA))
	waitEntered(t, l)
	queuedF := w.Submit(voucher.NewCreate(userB))

	cancel()
	close(l.block)

	if _, err := wait(t, inFlight); err != nil {
		t.Errorf("in-flight request must finish: %v", err)
	}
	if _, err := wait(t, queuedF); !errors.Is(err, voucher.ErrShutdown) {
		t.Errorf("queued request: got %v want ErrShutdown", err)
	}
	if w.State() != StateStopped {
		t.Errorf("state: got %s want stopped", w.State())
	}
	if _, err := wait(t, w.Submit(voucher.NewCreate(userA))); !errors.Is(err, voucher.ErrShutdown) {
		t.Errorf("submit after cancel: got %v want ErrShutdown", err)
	}
	if n := l.batchCount(); n != 1 {
		t.Errorf("batches: got %d want 1", n)
	}
}

func TestLoop_IdleDoesNotSubmit(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})
	start(t, w)

	time.Sleep(30 * time.Millisecond)
	if n := l.batchCount(); n != 0 {
		t.Errorf("idle worker submitted %d batches", n)
	}
	if w.State() != StateIdle {
		t.Errorf("state: got %s want idle", w.State())
	}
}

func TestLoop_WakesOnSubmitBeforePollInterval(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{PollInterval: time.Hour})
	start(t, w)
	time.Sleep(10 * time.Millisecond) // let the loop park

	if _, err := wait(t, w.Submit(voucher.NewCreate(userA))); err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestLoop_ManyConcurrentSubmitters(t *testing.T) {
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{})
	start(t, w)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := common.BigToHash(big.NewInt(int64(i + 1)))
			got, err := wait(t, w.Submit(voucher.NewUpdate(userA, id, true, false)))
			if err == nil && got != id {
				err = fmt.Errorf("request %d resolved to %s", i, got.Hex())
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if w.Pending() != 0 {
		t.Errorf("pending: got %d want 0", w.Pending())
	}
}

// ── Metrics ───────────────────────────────────────────────────────────────────

func TestMetrics_RecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	l := newMockLedger(t)
	w := newTestWorker(t, l, Options{Metrics: m})

	fOK := w.Submit(voucher.NewCreate(userA))
	fBad := w.Submit(voucher.Request{User: userA, CreateVoucher: true, AddTokens: true})
	start(t, w)
	wait(t, fOK)
	wait(t, fBad)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("resolved")); got != 1 {
		t.Errorf("resolved: got %v want 1", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("bad_request")); got != 1 {
		t.Errorf("bad_request: got %v want 1", got)
	}
	// The batch counter is bumped after routing; poll briefly.
	deadline := time.Now().Add(time.Second)
	for testutil.ToFloat64(m.batchesTotal.WithLabelValues("finalized")) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("finalized batch not recorded")
		}
		time.Sleep(time.Millisecond)
	}
}
