package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Concordium/concordium-web3id/internal/core/domain"
	"github.com/Concordium/concordium-web3id/internal/core/ports"
	"github.com/Concordium/concordium-web3id/internal/log"
	"github.com/Concordium/concordium-web3id/internal/ratelimit"
)

// WorkerConfig is the static issuance policy the worker enforces.
type WorkerConfig struct {
	// Sender is the ledger account transactions are submitted from.
	Sender string
	// Registry is the contract issued credentials are registered in.
	Registry domain.ContractAddress
	// MetadataURL is the metadata url every issued credential must carry.
	MetadataURL string
	// MaxEnergy is the energy allowance attached to register transactions.
	MaxEnergy uint64
	// TxExpiry is how far in the future submitted transactions expire.
	TxExpiry time.Duration
}

type issueJob struct {
	ctx  context.Context
	req  *domain.IssueRequest
	resp chan issueResult
}

type issueResult struct {
	txHash domain.TransactionHash
	err    error
}

// IssuanceWorker serializes credential registrations from a single ledger
// account. It is the sole owner of the account nonce: transactions must carry
// strictly increasing, gap-free sequence numbers, so all submissions funnel
// through its one loop. Requests queue without bound; callers block on a
// per-request response channel instead.
type IssuanceWorker struct {
	ledger  ports.LedgerClient
	limiter *ratelimit.Limiter
	cfg     WorkerConfig

	// nonce is only touched inside the run loop.
	nonce uint64

	in       chan *issueJob
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewIssuanceWorker builds a worker. Call Start before submitting requests.
func NewIssuanceWorker(ledger ports.LedgerClient, limiter *ratelimit.Limiter, cfg WorkerConfig) *IssuanceWorker {
	return &IssuanceWorker{
		ledger:  ledger,
		limiter: limiter,
		cfg:     cfg,
		in:      make(chan *issueJob),
		stopped: make(chan struct{}),
	}
}

// Start fetches the account's next sequence number and launches the worker
// loop. It refuses to start while the ledger reports non finalized
// transactions from the account, since the reported nonce could still change.
func (w *IssuanceWorker) Start(ctx context.Context) error {
	info, err := w.ledger.NextSequenceNumber(ctx, w.cfg.Sender)
	if err != nil {
		return fmt.Errorf("fetching initial sequence number: %w", err)
	}
	if !info.AllFinal {
		return fmt.Errorf("account %s has non finalized transactions, refusing to start", w.cfg.Sender)
	}
	w.nonce = info.Nonce
	log.Info(ctx, "issuance worker starting", "sender", w.cfg.Sender, "nonce", w.nonce)

	jobs := make(chan *issueJob)
	go w.pump(jobs)
	go w.run(ctx, jobs)
	return nil
}

// Stop closes the intake, waits for queued requests to be answered and for
// the loop to exit. Safe to call more than once.
func (w *IssuanceWorker) Stop() {
	w.stopOnce.Do(func() { close(w.in) })
	<-w.stopped
}

// Issue enqueues a request and blocks until the worker answers or ctx is
// done. An abandoned request is still processed; its outcome is logged and
// discarded.
func (w *IssuanceWorker) Issue(ctx context.Context, req *domain.IssueRequest) (domain.TransactionHash, error) {
	ctx = log.With(ctx, "jobId", uuid.NewString())
	job := &issueJob{ctx: ctx, req: req, resp: make(chan issueResult)}

	select {
	case w.in <- job:
	case <-w.stopped:
		return "", ErrWorkerStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-job.resp:
		return res.txHash, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// pump decouples intake from processing so that enqueueing never blocks on
// the submission in flight. It buffers without bound and drains the backlog
// once the intake closes.
func (w *IssuanceWorker) pump(out chan<- *issueJob) {
	defer close(out)
	var backlog []*issueJob
	for {
		var send chan<- *issueJob
		var next *issueJob
		if len(backlog) > 0 {
			send = out
			next = backlog[0]
		}
		select {
		case job, ok := <-w.in:
			if !ok {
				for _, j := range backlog {
					out <- j
				}
				return
			}
			backlog = append(backlog, job)
		case send <- next:
			backlog = backlog[1:]
		}
	}
}

func (w *IssuanceWorker) run(ctx context.Context, jobs <-chan *issueJob) {
	defer close(w.stopped)
	for job := range jobs {
		res, fatal := w.process(job)
		w.respond(job, res)
		if fatal {
			w.drain(jobs)
			return
		}
	}
	log.Info(ctx, "issuance worker stopped", "nonce", w.nonce)
}

// drain answers everything still queued after a fatal submission error. The
// worker no longer trusts its nonce, so nothing else may be submitted.
func (w *IssuanceWorker) drain(jobs <-chan *issueJob) {
	for job := range jobs {
		w.respond(job, issueResult{err: ErrWorkerStopped})
	}
}

func (w *IssuanceWorker) process(job *issueJob) (issueResult, bool) {
	req := job.req
	if err := w.validate(req); err != nil {
		return issueResult{err: err}, false
	}
	if !w.limiter.CheckLimit(req.UserID) {
		return issueResult{err: ErrRateLimited}, false
	}
	prior := w.limiter.Update(req.UserID)

	tx := domain.RegisterCredentialTx{
		Sender:     w.cfg.Sender,
		Nonce:      w.nonce,
		Expiry:     time.Now().Add(w.cfg.TxExpiry),
		Energy:     w.cfg.MaxEnergy,
		Registry:   w.cfg.Registry,
		Credential: req.Credential,
	}
	// The submission runs to completion even if the caller went away; the
	// nonce must advance exactly when the ledger accepted the transaction.
	hash, err := w.ledger.SubmitTransaction(context.WithoutCancel(job.ctx), tx)
	if err == nil {
		w.nonce++
		return issueResult{txHash: hash}, false
	}

	// The transaction did not land, so the reserved rate limit slot is
	// released again.
	w.limiter.Undo(req.UserID, prior)
	switch {
	case errors.Is(err, ports.ErrLedgerSequence):
		log.Error(job.ctx, "sequence number desynced from ledger state, terminating issuance worker",
			"err", err, "nonce", w.nonce)
		return issueResult{err: err}, true
	case errors.Is(err, ports.ErrLedgerRejected):
		log.Info(job.ctx, "ledger rejected credential registration", "err", err)
		return issueResult{err: err}, false
	default:
		log.Warn(job.ctx, "credential registration failed", "err", err)
		if !errors.Is(err, ports.ErrLedgerUnavailable) {
			err = fmt.Errorf("%w: %v", ports.ErrLedgerUnavailable, err)
		}
		return issueResult{err: err}, false
	}
}

func (w *IssuanceWorker) validate(req *domain.IssueRequest) error {
	if req.UserID == "" || req.Username == "" {
		return fmt.Errorf("%w: user id and username are required", ErrInvalidRequest)
	}
	c := &req.Credential
	if !c.HolderRevocable {
		return fmt.Errorf("%w: credential must be holder revocable", ErrInvalidRequest)
	}
	if c.ValidUntil != nil {
		return fmt.Errorf("%w: credential must not carry an expiry", ErrInvalidRequest)
	}
	if d := time.Since(c.ValidFrom); d < -time.Minute || d > time.Minute {
		return fmt.Errorf("%w: credential validity must start now", ErrInvalidRequest)
	}
	if c.MetadataURL.URL != w.cfg.MetadataURL {
		return fmt.Errorf("%w: unexpected metadata url %s", ErrInvalidRequest, c.MetadataURL.URL)
	}
	return nil
}

func (w *IssuanceWorker) respond(job *issueJob, res issueResult) {
	select {
	case job.resp <- res:
	case <-job.ctx.Done():
		log.Warn(job.ctx, "caller went away, discarding issuance outcome",
			"txHash", res.txHash, "err", res.err)
	}
}
