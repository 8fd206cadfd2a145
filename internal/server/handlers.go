package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/txsentinel/internal/assistant"
	"github.com/mbd888/txsentinel/internal/dashboard"
	"github.com/mbd888/txsentinel/internal/enrich"
	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/pagination"
	"github.com/mbd888/txsentinel/internal/txn"
	"github.com/mbd888/txsentinel/internal/validation"
	"github.com/mbd888/txsentinel/internal/wallet"
)

// -----------------------------------------------------------------------------
// Wallet
// -----------------------------------------------------------------------------

// ConnectRequest is the body of POST /v1/wallet/connect
type ConnectRequest struct {
	Address string `json:"address"`
	// Rejected is set by the page when the user declined the injected
	// wallet's account prompt.
	Rejected bool `json:"rejected,omitempty"`
}

// AccountsRequest is the body of POST /v1/wallet/accounts
type AccountsRequest struct {
	Accounts []string `json:"accounts"`
}

// WalletResponse summarizes the session and its latest batch.
type WalletResponse struct {
	Connected    bool            `json:"connected"`
	Session      *wallet.Session `json:"session,omitempty"`
	Transactions int             `json:"transactions"`
	HighRisk     int             `json:"highRisk"`
	Demo         bool            `json:"demo"`
	Refreshing   bool            `json:"refreshing"`
	RefreshedAt  *time.Time      `json:"refreshedAt,omitempty"`
}

func walletView(snap dashboard.Snapshot) WalletResponse {
	return WalletResponse{
		Connected:    snap.Session != nil,
		Session:      snap.Session,
		Transactions: len(snap.Batch.Records),
		HighRisk:     snap.HighRisk,
		Demo:         snap.Batch.Demo,
		Refreshing:   snap.Refreshing,
		RefreshedAt:  snap.RefreshedAt,
	}
}

func (s *Server) getWallet(c *gin.Context) {
	c.JSON(http.StatusOK, walletView(s.dashboard.Snapshot()))
}

func (s *Server) connectWallet(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	if req.Rejected {
		respondError(c, s.dashboard.Decline(c.Request.Context()))
		return
	}
	req.Address = validation.SanitizeAddress(req.Address)
	if errs := validation.Validate(
		validation.Required("address", req.Address),
		validation.ValidAddress("address", req.Address),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	if _, err := s.dashboard.Connect(c.Request.Context(), req.Address); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, walletView(s.dashboard.Snapshot()))
}

// accountsChanged relays a wallet's accountsChanged event from a client
// that is not on the websocket.
func (s *Server) accountsChanged(c *gin.Context) {
	var req AccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Accounts == nil {
		badRequest(c, "invalid_request", "accounts must be a list of addresses")
		return
	}
	if errs := validation.Validate(validation.ValidAddresses("accounts", req.Accounts)); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	s.wallets.AccountsChanged(req.Accounts)
	c.JSON(http.StatusOK, walletView(s.dashboard.Snapshot()))
}

func (s *Server) disconnectWallet(c *gin.Context) {
	s.dashboard.Disconnect()
	c.Status(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// BatchResponse is the current enriched batch plus refresh state.
type BatchResponse struct {
	enrich.Result
	HighRisk    int               `json:"highRisk"`
	Refreshing  bool              `json:"refreshing"`
	RefreshedAt *time.Time        `json:"refreshedAt,omitempty"`
	Simplified  map[string]string `json:"simplified,omitempty"`
}

func (s *Server) listTransactions(c *gin.Context) {
	snap := s.dashboard.Snapshot()
	if snap.Session == nil {
		respondError(c, dashboard.ErrNotConnected)
		return
	}
	c.JSON(http.StatusOK, BatchResponse{
		Result:      snap.Batch,
		HighRisk:    snap.HighRisk,
		Refreshing:  snap.Refreshing,
		RefreshedAt: snap.RefreshedAt,
		Simplified:  snap.Simplified,
	})
}

func (s *Server) refreshTransactions(c *gin.Context) {
	res, err := s.dashboard.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	snap := s.dashboard.Snapshot()
	c.JSON(http.StatusOK, BatchResponse{
		Result:      res,
		HighRisk:    res.HighRisk(),
		RefreshedAt: snap.RefreshedAt,
	})
}

func (s *Server) simplifyTransaction(c *gin.Context) {
	hash := c.Param("hash")
	text, err := s.dashboard.Simplify(c.Request.Context(), hash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash, "text": text})
}

func (s *Server) speakTransaction(c *gin.Context) {
	audio, err := s.dashboard.Speak(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(audio) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "audio/wav", audio)
}

// -----------------------------------------------------------------------------
// Chat
// -----------------------------------------------------------------------------

// ChatRequest is the body of POST /v1/chat
type ChatRequest struct {
	Message string `json:"message"`
}

// getTranscript returns the whole transcript, or with ?limit= (and the
// cursor from a previous page) a window walking back from the newest message.
func (s *Server) getTranscript(c *gin.Context) {
	messages := s.dashboard.Transcript()
	resp := gin.H{"suggestions": assistant.Suggestions}

	if c.Query("limit") == "" && c.Query("cursor") == "" {
		resp["messages"] = messages
		c.JSON(http.StatusOK, resp)
		return
	}

	limit, err := pagination.ParseLimit(c.Query("limit"))
	if err != nil {
		badRequest(c, "invalid_limit", err.Error())
		return
	}
	cur, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		badRequest(c, "invalid_cursor", "Cursor is not valid")
		return
	}

	page, next, hasMore := pagination.Before(messages, cur, limit, func(m assistant.Message) (time.Time, string) {
		return m.Timestamp, m.ID
	})
	resp["messages"] = page
	resp["hasMore"] = hasMore
	if hasMore {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) postChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	req.Message = validation.SanitizeString(req.Message, assistant.MaxQuestionLength+1)

	ex, err := s.dashboard.Chat(c.Request.Context(), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ex)
}

// -----------------------------------------------------------------------------
// Stateless scoring
// -----------------------------------------------------------------------------

// scoreTransaction scores an ad-hoc transaction without touching the
// session or the model.
func (s *Server) scoreTransaction(c *gin.Context) {
	var tx txn.RawTransaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		badRequest(c, "invalid_request", "Invalid request body")
		return
	}
	if errs := validation.Validate(
		validation.ValidAddress("from", tx.From),
		validation.ValidAddress("to", tx.To),
	); len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	res := s.assembler.Score([]txn.RawTransaction{tx})
	if len(res.Records) == 0 {
		msg := "transaction is malformed"
		if len(res.Rejected) > 0 {
			msg = res.Rejected[0].Error
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "malformed_transaction",
			"message": msg,
		})
		return
	}
	c.JSON(http.StatusOK, res.Records[0])
}

// scanAddress fetches the recent window for any address. With
// ?explain=true every record is also explained.
func (s *Server) scanAddress(c *gin.Context) {
	ctx := c.Request.Context()
	address := c.Param("address")

	raws, err := s.chain.Fetch(ctx, address)
	if err != nil {
		logging.L(ctx).Warn("address scan failed", "address", address, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "chain_unavailable",
			"message": "Could not read transactions from the chain",
		})
		return
	}

	// An empty window stays empty; Enrich would substitute demo data.
	var res enrich.Result
	if c.Query("explain") == "true" && len(raws) > 0 {
		if res, err = s.assembler.Enrich(ctx, raws); err != nil {
			respondError(c, err)
			return
		}
	} else {
		res = s.assembler.Score(raws)
	}
	c.JSON(http.StatusOK, BatchResponse{Result: res, HighRisk: res.HighRisk()})
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": code, "message": message})
}

func validationFailed(c *gin.Context, errs validation.ValidationErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_failed",
		"message": errs.Error(),
		"details": errs,
	})
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var unavailable *wallet.UnavailableError
	switch {
	case errors.As(err, &unavailable):
		switch unavailable.Reason {
		case wallet.ReasonMalformedAddress:
			badRequest(c, "invalid_address", unavailable.Error())
		case wallet.ReasonRejected:
			c.JSON(http.StatusForbidden, gin.H{"error": "wallet_rejected", "message": unavailable.Error()})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wallet_unavailable", "message": unavailable.Error()})
		}
	case errors.Is(err, dashboard.ErrNotConnected):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_connected", "message": "No wallet is connected"})
	case errors.Is(err, dashboard.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction_not_found", "message": "Transaction is not in the current batch"})
	case errors.Is(err, dashboard.ErrRefreshInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "refresh_in_progress", "message": "A refresh is already running"})
	case errors.Is(err, dashboard.ErrSessionChanged):
		c.JSON(http.StatusConflict, gin.H{"error": "session_changed", "message": "The wallet changed while the request was running"})
	case errors.Is(err, assistant.ErrEmptyQuestion), errors.Is(err, assistant.ErrQuestionTooLong):
		badRequest(c, "invalid_message", err.Error())
	default:
		logging.L(c.Request.Context()).Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "An unexpected error occurred"})
	}
}
