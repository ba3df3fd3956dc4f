package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/justinabrahms/gomokuvault/internal/auth"
	"github.com/justinabrahms/gomokuvault/internal/ledger"
	"github.com/justinabrahms/gomokuvault/internal/lobby"
	"github.com/justinabrahms/gomokuvault/internal/vault"
	"github.com/rs/zerolog/log"
)

// GameReader loads a single game record.
type GameReader interface {
	GameDetails(ctx context.Context, id uint64) (ledger.Game, error)
}

type Service struct {
	reconciler *lobby.Reconciler
	actions    *lobby.Actions
	vault      *vault.Service
	games      GameReader
	issuer     *auth.Issuer
}

// NewService builds the HTTP handlers. A nil issuer leaves write endpoints
// open.
func NewService(r *lobby.Reconciler, a *lobby.Actions, v *vault.Service, games GameReader, issuer *auth.Issuer) *Service {
	return &Service{
		reconciler: r,
		actions:    a,
		vault:      v,
		games:      games,
		issuer:     issuer,
	}
}

type GameView struct {
	ID         uint64 `json:"id"`
	Creator    string `json:"creator"`
	Opponent   string `json:"opponent,omitempty"`
	Status     string `json:"status"`
	StatusCode uint8  `json:"statusCode"`
	Stake      string `json:"stake"`
	StakeWei   string `json:"stakeWei"`
	Turn       string `json:"turn,omitempty"`
	LastMoveAt uint64 `json:"lastMoveAt"`
	Winner     string `json:"winner,omitempty"`
	CanJoin    bool   `json:"canJoin"`
	IsCreator  bool   `json:"isCreator"`
}

type SessionView struct {
	Account      string `json:"account,omitempty"`
	Username     string `json:"username"`
	Balance      string `json:"balance"`
	Frozen       bool   `json:"frozen"`
	ActiveGameID uint64 `json:"activeGameId"`
	Loading      bool   `json:"loading"`
	Error        string `json:"error,omitempty"`
}

func addressOrEmpty(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func newGameView(g ledger.Game, s lobby.Session) GameView {
	stakeWei := "0"
	if g.Stake != nil {
		stakeWei = g.Stake.String()
	}
	return GameView{
		ID:         g.ID,
		Creator:    addressOrEmpty(g.Creator),
		Opponent:   addressOrEmpty(g.Opponent),
		Status:     g.Status.String(),
		StatusCode: uint8(g.Status),
		Stake:      ledger.FormatEther(g.Stake),
		StakeWei:   stakeWei,
		Turn:       addressOrEmpty(g.Turn),
		LastMoveAt: g.LastMoveAt,
		Winner:     addressOrEmpty(g.Winner),
		CanJoin:    g.IsOpen() && !s.IsCreator(g) && s.CanJoin(g),
		IsCreator:  s.IsCreator(g),
	}
}

func (s *Service) sessionView() SessionView {
	session := s.reconciler.Session()
	return SessionView{
		Account:      addressOrEmpty(session.Account),
		Username:     session.Username,
		Balance:      ledger.FormatEther(session.Balance),
		Frozen:       session.Frozen,
		ActiveGameID: session.ActiveGameID,
		Loading:      s.reconciler.Loading(),
		Error:        s.reconciler.Err(),
	}
}

func (s *Service) openGamesView() []GameView {
	session := s.reconciler.Session()
	games := s.reconciler.OpenGames()
	views := make([]GameView, 0, len(games))
	for _, g := range games {
		views = append(views, newGameView(g, session))
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the user-facing message of err: 400 for rejected
// input, 500 for everything the ledger refused or failed.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal error"

	var actionErr *lobby.ActionError
	var vaultErr *vault.Error
	switch {
	case errors.As(err, &actionErr):
		message = actionErr.Message
	case errors.As(err, &vaultErr):
		message = vaultErr.Message
	}
	if errors.Is(err, lobby.ErrInvalidInput) || errors.Is(err, vault.ErrInvalidInput) {
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

func gameIDFromPath(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid game ID"})
		return 0, false
	}
	return id, true
}

func (s *Service) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"account": s.sessionView().Account,
	})
}

func (s *Service) SessionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *Service) OpenGamesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"games":   s.openGamesView(),
		"loading": s.reconciler.Loading(),
	})
}

func (s *Service) GetGameHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := gameIDFromPath(w, r)
	if !ok {
		return
	}

	game, err := s.games.GameDetails(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Uint64("gameID", id).Msg("Failed to fetch game")
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Game not found"})
		return
	}

	writeJSON(w, http.StatusOK, newGameView(game, s.reconciler.Session()))
}

// RefreshHandler re-reads session and open games. Read failures are
// reported through the session error, not the status code.
func (s *Service) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.reconciler.Refresh(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Manual refresh incomplete")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": s.sessionView(),
		"games":   s.openGamesView(),
	})
}

type CreateGameRequest struct {
	Stake string `json:"stake"`
}

func (s *Service) CreateGameHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.actions.CreateGame(r.Context(), req.Stake)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"gameId": id})
}

func (s *Service) JoinGameHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := gameIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.actions.JoinGame(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"gameId": id})
}

func (s *Service) CancelGameHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := gameIDFromPath(w, r)
	if !ok {
		return
	}
	if err := s.actions.CancelGame(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type MakeMoveRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *Service) MakeMoveHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := gameIDFromPath(w, r)
	if !ok {
		return
	}
	var req MakeMoveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.actions.MakeMove(r.Context(), id, req.X, req.Y); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"gameId": id, "x": req.X, "y": req.Y})
}

type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Service) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.vault.Register(r.Context(), req.Username, req.Password, req.ConfirmPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Registration successful!"})
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Account   string `json:"account"`
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

func (s *Service) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := s.vault.Login(r.Context(), req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := LoginResponse{Account: account.Hex()}
	if s.issuer != nil {
		token, expires, err := s.issuer.Issue(account.Hex())
		if err != nil {
			log.Error().Err(err).Msg("Failed to issue token")
			writeError(w, err)
			return
		}
		resp.Token = token
		resp.ExpiresAt = expires.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type WithdrawRequest struct {
	Amount string `json:"amount"`
}

func (s *Service) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.vault.Withdraw(r.Context(), req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Withdraw successful"})
}

func (s *Service) UserInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.vault.UserInfo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": info.Username,
		"balance":  ledger.FormatEther(info.Balance),
		"frozen":   info.Frozen,
	})
}

// Router registers every API route. Write endpoints sit behind the token
// middleware when an issuer is configured.
func (s *Service) Router(hub *Hub) *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.HealthHandler).Methods("GET")
	api.HandleFunc("/session", s.SessionHandler).Methods("GET")
	api.HandleFunc("/games/open", s.OpenGamesHandler).Methods("GET")
	api.HandleFunc("/games/{id:[0-9]+}", s.GetGameHandler).Methods("GET")
	api.HandleFunc("/vault/user", s.UserInfoHandler).Methods("GET")
	api.HandleFunc("/refresh", s.RefreshHandler).Methods("POST")
	api.HandleFunc("/vault/register", s.RegisterHandler).Methods("POST")
	api.HandleFunc("/vault/login", s.LoginHandler).Methods("POST")

	writes := api.NewRoute().Subrouter()
	if s.issuer != nil {
		writes.Use(s.issuer.Middleware)
	}
	writes.HandleFunc("/games", s.CreateGameHandler).Methods("POST")
	writes.HandleFunc("/games/{id:[0-9]+}/join", s.JoinGameHandler).Methods("POST")
	writes.HandleFunc("/games/{id:[0-9]+}/cancel", s.CancelGameHandler).Methods("POST")
	writes.HandleFunc("/games/{id:[0-9]+}/moves", s.MakeMoveHandler).Methods("POST")
	writes.HandleFunc("/vault/logout", s.LogoutHandler).Methods("POST")
	writes.HandleFunc("/vault/withdraw", s.WithdrawHandler).Methods("POST")

	if hub != nil {
		router.HandleFunc("/ws", s.WebSocketHandler(hub)).Methods("GET")
	}
	return router
}
