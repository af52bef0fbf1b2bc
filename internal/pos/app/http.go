package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	apperrors "github.com/osetale/poslive/internal/errors"
	"github.com/osetale/poslive/internal/pos/domain"
)

type commitRequest struct {
	TerminalID string `json:"terminal_id"`
	Amount     int64  `json:"amount"`
}

type transactionResponse struct {
	ID          int64  `json:"id"`
	TerminalID  string `json:"terminal_id"`
	Amount      int64  `json:"amount"`
	Beneficiary string `json:"beneficiary"`
	BankName    string `json:"bank_name"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type terminalResponse struct {
	TerminalID    string `json:"terminal_id"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	ChannelURL    string `json:"channel_url"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewHandler builds the POS HTTP API over the commit service.
func NewHandler(service *Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /api/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		handleCommitTransaction(service, w, r)
	})
	mux.HandleFunc("GET /api/v1/pos/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetTerminal(service, w, r)
	})
	mux.HandleFunc("GET /api/v1/pos/{id}/transactions", func(w http.ResponseWriter, r *http.Request) {
		handleListTransactions(service, w, r)
	})
	return mux
}

func handleCommitTransaction(service *Service, w http.ResponseWriter, r *http.Request) {
	var request commitRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeValidation, "invalid request body", err))
		return
	}

	transaction, err := service.CommitTransaction(r.Context(), request.TerminalID, request.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(transaction))
}

func handleGetTerminal(service *Service, w http.ResponseWriter, r *http.Request) {
	record, err := service.GetTerminal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, terminalResponse{
		TerminalID:    record.ID,
		AccountName:   record.AccountName,
		AccountNumber: record.AccountNumber,
		ChannelURL:    record.ChannelURL,
	})
}

func handleListTransactions(service *Service, w http.ResponseWriter, r *http.Request) {
	transactions, err := service.ListTransactions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	responses := make([]transactionResponse, 0, len(transactions))
	for _, transaction := range transactions {
		responses = append(responses, toTransactionResponse(transaction))
	}
	writeJSON(w, http.StatusOK, responses)
}

func toTransactionResponse(transaction domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:          transaction.ID,
		TerminalID:  transaction.TerminalID,
		Amount:      transaction.Amount,
		Beneficiary: transaction.Beneficiary,
		BankName:    transaction.BankName,
		CreatedAt:   transaction.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   transaction.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("pos: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	body := errorBody{Code: string(apperrors.GetCode(err)), Message: err.Error()}
	if status == http.StatusInternalServerError {
		log.Printf("pos: request failed: %v", err)
		body.Message = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: body})
}

// Run serves the POS API until ctx is cancelled.
func Run(ctx context.Context, service *Service, port int) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewHandler(service),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("pos: listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown pos server: %w", err)
	}
	return <-errCh
}
