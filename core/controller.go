package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ResourceBudgets is the per-transaction allotment a Controller grants when
// a transaction does not specify its own (section 5).
type ResourceBudgets struct {
	Disk, Network, Ticks uint64
}

// Controller is the top-level entry point driving block and transaction
// application against a StateDB, mirroring the original's thin RPC-facing
// wrapper over its internal chain logic (section 4.E).
type Controller struct {
	DB      *StateDB
	Backend *WasmBackend
	Budgets ResourceBudgets
	ChainID BlockID
	Limiter *rate.Limiter
}

// NewController wires a controller over an already-open state database.
func NewController(db *StateDB, backend *WasmBackend, budgets ResourceBudgets, chainID BlockID) *Controller {
	return &Controller{
		DB:      db,
		Backend: backend,
		Budgets: budgets,
		ChainID: chainID,
		Limiter: rate.NewLimiter(200, 100),
	}
}

func blockDigest(b Block) BlockID {
	enc, _ := rlp.EncodeToBytes(struct {
		ParentID  BlockID
		Height    uint64
		Timestamp uint64 // rlp has no signed integers
		TxIDs     [][32]byte
	}{
		ParentID:  b.ParentID,
		Height:    b.Height,
		Timestamp: uint64(b.Timestamp),
		TxIDs:     txIDs(b.Transactions),
	})
	return crypto.Keccak256Hash(enc)
}

func txIDs(txs []Transaction) [][32]byte {
	out := make([][32]byte, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

// applyTransaction runs tx's operations in a session of its own over the
// block's state node, rolling back on the first failing operation (section 4.E).
func (c *Controller) applyTransaction(chain *Chronicler, tx Transaction, handle int) TransactionReceipt {
	budgets := ResourceBudgets{Disk: tx.DiskLimit, Network: tx.NetworkLimit, Ticks: tx.TickLimit}
	if budgets.Disk == 0 {
		budgets.Disk = c.Budgets.Disk
	}
	if budgets.Network == 0 {
		budgets.Network = c.Budgets.Network
	}
	if budgets.Ticks == 0 {
		budgets.Ticks = c.Budgets.Ticks
	}
	meter := NewResourceMeter(budgets.Disk, budgets.Network, budgets.Ticks)

	mirror := chain.Attach()
	defer chain.Detach()

	sess := NewSession(c.DB, handle, meter, chain, chain)
	ctx := NewExecutionContext(c.DB, handle, sess, chain, c.Backend, IntentTransactionApplication)
	ctx.PushFrame(Frame{Caller: tx.Payer, Privilege: PrivilegeUser})

	var opErr error
	for _, op := range tx.Operations {
		ctx.PushFrame(Frame{Caller: tx.Payer, Contract: op.Contract, Privilege: PrivilegeUser, EntryPoint: op.EntryPoint, Args: op.Args})
		if c.Backend == nil {
			opErr = fmt.Errorf("core: no wasm backend configured")
		} else {
			_, opErr = c.Backend.RunEntryPoint(ctx, op.Contract, op.EntryPoint, op.Args, MaxObjectSize)
		}
		ctx.PopFrame()
		if opErr != nil {
			break
		}
	}

	if opErr != nil {
		sess.Rollback()
		chain.Emit(Event{Source: tx.Payer, Name: "transaction_failed", Payload: []byte(opErr.Error())})
		return TransactionReceipt{
			ID:          BlockID(tx.ID),
			Success:     false,
			Code:        "transaction_failed",
			Diagnostic:  opErr.Error(),
			ComputeUsed: meter.Usage().Ticks,
			Events:      mirror.SessionEvents(),
			Logs:        mirror.logs,
		}
	}

	sess.Commit()
	return TransactionReceipt{
		ID:          BlockID(tx.ID),
		Success:     true,
		ComputeUsed: meter.Usage().Ticks,
		Events:      mirror.SessionEvents(),
		Logs:        mirror.logs,
	}
}

// applyBlock runs block against an anonymous child of its declared parent.
// If commit is false the node is discarded before returning, implementing
// propose_block's preview-without-persist semantics.
func (c *Controller) applyBlock(block Block, commit bool) (int, Receipt, error) {
	parent, ok := c.DB.NodeByBlockID(block.ParentID)
	if !ok {
		return 0, Receipt{}, fmt.Errorf("apply_block: %w", ErrInvalidParent)
	}
	if parent.Height+1 != block.Height {
		return 0, Receipt{}, fmt.Errorf("apply_block: %w", ErrBlockHeightMismatch)
	}

	child, err := c.DB.MakeChild(parent.Handle)
	if err != nil {
		return 0, Receipt{}, err
	}

	chain := NewChronicler()
	receipt := Receipt{}
	for _, tx := range block.Transactions {
		tr := c.applyTransaction(chain, tx, child.Handle)
		receipt.TransactionReceipt = append(receipt.TransactionReceipt, tr)
		receipt.ComputeUsed += tr.ComputeUsed
	}
	receipt.Events = chain.Events()
	receipt.Logs = chain.Logs()

	if !commit {
		c.DB.Discard(child.Handle)
		return child.Handle, receipt, nil
	}

	blockID := block.ID
	if blockID == (BlockID{}) {
		blockID = blockDigest(block)
	}
	child.Timestamp = block.Timestamp
	child.BurnWeight = block.BurnWeight
	if err := c.DB.Finalize(child.Handle, blockID); err != nil {
		c.DB.Discard(child.Handle)
		return 0, Receipt{}, err
	}
	c.DB.RecomputeHead()
	c.maybeCommitIrreversible()
	receipt.BlockID = blockID
	return child.Handle, receipt, nil
}

// maybeCommitIrreversible commits the head's irreversibility-threshold
// ancestor to the root backend, if head has advanced far enough past it
// (section 4.H step 6, "possibly commit irreversible"). Heights already
// committed on a prior call fail closed and are ignored: commit is
// idempotent from the controller's point of view.
func (c *Controller) maybeCommitIrreversible() {
	head := c.DB.Head()
	threshold := c.DB.Threshold()
	if head == nil || head.Height <= threshold {
		return
	}
	if err := c.DB.CommitIrreversible(head.Height - threshold); err != nil {
		log.WithError(err).Debug("controller: commit_irreversible skipped")
	}
}

// SubmitBlock finalizes block onto the tree and advances head if it wins
// fork choice (section 6).
func (c *Controller) SubmitBlock(block Block) (Receipt, error) {
	_, receipt, err := c.applyBlock(block, true)
	return receipt, err
}

// ProposeBlock applies block without finalizing it, for preview/validation
// (section 6).
func (c *Controller) ProposeBlock(block Block) (Receipt, error) {
	_, receipt, err := c.applyBlock(block, false)
	return receipt, err
}

// SubmitTransaction applies a single-transaction block on top of the
// current head and, if it succeeds, finalizes and advances head to it.
func (c *Controller) SubmitTransaction(tx Transaction) (TransactionReceipt, error) {
	head := c.DB.Head()
	if head == nil {
		return TransactionReceipt{}, ErrInvalidParent
	}
	block := Block{
		ParentID:     head.ID,
		Height:       head.Height + 1,
		Timestamp:    time.Now().Unix(),
		Transactions: []Transaction{tx},
	}
	receipt, err := c.SubmitBlock(block)
	if err != nil {
		return TransactionReceipt{}, err
	}
	if len(receipt.TransactionReceipt) == 0 {
		return TransactionReceipt{}, fmt.Errorf("core: submit_transaction produced no receipt")
	}
	return receipt.TransactionReceipt[0], nil
}

// HeadInfo is the get_head_info response shape (section 6).
type HeadInfo struct {
	HeadID           BlockID `json:"head_id"`
	Height           uint64  `json:"height"`
	LastIrreversible uint64  `json:"last_irreversible_height"`
}

// GetHeadInfo reports the current head (section 6).
func (c *Controller) GetHeadInfo() HeadInfo {
	head := c.DB.Head()
	threshold := c.DB.Threshold()
	var irr uint64
	if head != nil && head.Height > threshold {
		irr = head.Height - threshold
	}
	return HeadInfo{HeadID: head.ID, Height: head.Height, LastIrreversible: irr}
}

// GetChainID reports the configured chain id (section 6).
func (c *Controller) GetChainID() BlockID {
	return c.ChainID
}

// GetForkHeads reports every finalized tip (section 6).
func (c *Controller) GetForkHeads() []BlockID {
	heads := c.DB.ForkHeads()
	out := make([]BlockID, len(heads))
	for i, h := range heads {
		out[i] = h.ID
	}
	return out
}

// ReadContract runs a read-only entry point against the current head.
func (c *Controller) ReadContract(contract ContractID, entryPoint uint32, args []byte) ([]byte, error) {
	head := c.DB.Head()
	if head == nil {
		return nil, ErrInvalidParent
	}
	if c.Backend == nil {
		return nil, fmt.Errorf("core: no wasm backend configured")
	}
	meter := NewResourceMeter(c.Budgets.Disk, c.Budgets.Network, c.Budgets.Ticks)
	chain := NewChronicler()
	sess := NewSession(c.DB, head.Handle, meter, chain, chain)
	ctx := NewExecutionContext(c.DB, head.Handle, sess, chain, c.Backend, IntentReadOnly)
	ctx.ReadOnly = true
	ctx.PushFrame(Frame{Contract: contract, Privilege: PrivilegeUser, EntryPoint: entryPoint, Args: args})
	return c.Backend.RunEntryPoint(ctx, contract, entryPoint, args, MaxObjectSize)
}

// InvokeSystemCall runs a read-only system-call invocation against head,
// sandboxed the same way as ReadContract (section 6 "invoke_system_call").
func (c *Controller) InvokeSystemCall(id SyscallID, args []byte) ([]byte, error) {
	head := c.DB.Head()
	if head == nil {
		return nil, ErrInvalidParent
	}
	meter := NewResourceMeter(c.Budgets.Disk, c.Budgets.Network, c.Budgets.Ticks)
	chain := NewChronicler()
	sess := NewSession(c.DB, head.Handle, meter, chain, chain)
	ctx := NewExecutionContext(c.DB, head.Handle, sess, chain, c.Backend, IntentReadOnly)
	ctx.ReadOnly = true
	ctx.PushFrame(Frame{Privilege: PrivilegeUser})
	return InvokeSystemCall(id, ctx, args, MaxObjectSize)
}

func accountNonceKey(account ContractID) []byte {
	return account[:]
}

// GetAccountNonce reads the current nonce for account from head.
func (c *Controller) GetAccountNonce(account ContractID) (uint64, error) {
	head := c.DB.Head()
	if head == nil {
		return 0, ErrInvalidParent
	}
	v, err := c.DB.Get(head.Handle, SpaceTransactionNonce, accountNonceKey(account))
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("core: corrupt nonce value")
	}
	return binary.BigEndian.Uint64(v), nil
}

// GetAccountResourceCredits reads the head-state resource-credit balance
// recorded for account, if the node's contract layer has populated one.
func (c *Controller) GetAccountResourceCredits(account ContractID) (uint64, error) {
	head := c.DB.Head()
	if head == nil {
		return 0, ErrInvalidParent
	}
	v, err := c.DB.Get(head.Handle, SpaceMetadata, append(append([]byte{}, KeyMaxAccountResources...), account[:]...))
	if err == ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("core: corrupt resource credit value")
	}
	return binary.BigEndian.Uint64(v), nil
}

// GetResourceLimits reports the chain-wide resource budgets from head
// state, falling back to the controller's configured defaults.
func (c *Controller) GetResourceLimits() ResourceBudgets {
	head := c.DB.Head()
	if head == nil {
		return c.Budgets
	}
	v, err := c.DB.Get(head.Handle, SpaceMetadata, KeyResourceLimitData)
	if err != nil || len(v) != 24 {
		return c.Budgets
	}
	return ResourceBudgets{
		Disk:    binary.BigEndian.Uint64(v[0:8]),
		Network: binary.BigEndian.Uint64(v[8:16]),
		Ticks:   binary.BigEndian.Uint64(v[16:24]),
	}
}

// Router builds the chi RPC surface (section 6), rate-limited with the
// same token-bucket idiom as the teacher's HTTP bootstrap.
func (c *Controller) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !c.Limiter.Allow() {
				http.Error(w, "rate limit", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Post("/submit_block", func(w http.ResponseWriter, req *http.Request) {
		var block Block
		if err := json.NewDecoder(req.Body).Decode(&block); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		receipt, err := c.SubmitBlock(block)
		writeJSON(w, receipt, err)
	})
	r.Post("/propose_block", func(w http.ResponseWriter, req *http.Request) {
		var block Block
		if err := json.NewDecoder(req.Body).Decode(&block); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		receipt, err := c.ProposeBlock(block)
		writeJSON(w, receipt, err)
	})
	r.Post("/submit_transaction", func(w http.ResponseWriter, req *http.Request) {
		var tx Transaction
		if err := json.NewDecoder(req.Body).Decode(&tx); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		receipt, err := c.SubmitTransaction(tx)
		writeJSON(w, receipt, err)
	})
	r.Get("/head", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, c.GetHeadInfo(), nil)
	})
	r.Get("/chain_id", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, c.GetChainID(), nil)
	})
	r.Get("/fork_heads", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, c.GetForkHeads(), nil)
	})
	r.Get("/account/{address}/nonce", func(w http.ResponseWriter, req *http.Request) {
		account, err := parseContractID(chi.URLParam(req, "address"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		nonce, err := c.GetAccountNonce(account)
		writeJSON(w, nonce, err)
	})
	r.Get("/account/{address}/rc", func(w http.ResponseWriter, req *http.Request) {
		account, err := parseContractID(chi.URLParam(req, "address"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rc, err := c.GetAccountResourceCredits(account)
		writeJSON(w, rc, err)
	})
	r.Get("/resource_limits", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, c.GetResourceLimits(), nil)
	})
	r.Post("/read_contract", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Contract   ContractID `json:"contract"`
			EntryPoint uint32     `json:"entry_point"`
			Args       []byte     `json:"args"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := c.ReadContract(body.Contract, body.EntryPoint, body.Args)
		writeJSON(w, result, err)
	})
	r.Post("/invoke_system_call", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ID   uint32 `json:"id"`
			Args []byte `json:"args"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := c.InvokeSystemCall(SyscallID(body.ID), body.Args)
		writeJSON(w, result, err)
	})
	return r
}

// parseContractID decodes a hex-encoded, 0x-prefix-optional address from an
// RPC path parameter (section 6's get_account_nonce/get_account_rc).
func parseContractID(s string) (ContractID, error) {
	if len(s) >= 2 && s[0:2] == "0x" {
		s = s[2:]
	}
	if len(s) != 2*len(ContractID{}) {
		return ContractID{}, fmt.Errorf("core: invalid address %q", s)
	}
	var out ContractID
	for i := range out {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return ContractID{}, fmt.Errorf("core: invalid address %q: %w", s, err)
		}
		out[i] = byte(b)
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("controller: encode response")
	}
}

// Serve starts the RPC surface on addr, mirroring the teacher's HTTP
// bootstrap timeouts.
func (c *Controller) Serve(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      c.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	log.WithField("addr", addr).Info("controller: listening")
	return srv.ListenAndServe()
}
