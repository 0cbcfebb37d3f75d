package driver

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"math/big"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/cowbatch/settlement/pkg/domain"
	"github.com/cowbatch/settlement/pkg/events"
)

// Server exposes a Driver over the §6 JSON API: POST /solve,
// POST /reveal/{solution_id}, POST /settle/{solution_id}.
type Server struct {
	driver *Driver
	router *mux.Router
	hub    *events.Hub
	log    *zap.SugaredLogger
}

func NewServer(d *Driver, hub *events.Hub, log *zap.SugaredLogger) *Server {
	s := &Server{driver: d, router: mux.NewRouter(), hub: hub, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/solve", s.handleSolve).Methods(http.MethodPost)
	s.router.HandleFunc("/reveal/{solution_id}", s.handleReveal).Methods(http.MethodPost)
	s.router.HandleFunc("/settle/{solution_id}", s.handleSettle).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.hub != nil {
		s.router.HandleFunc("/events", s.hub.ServeHTTP)
	}
}

// Start runs the HTTP server, blocking until it exits.
func (s *Server) Start(addr string) error {
	if s.hub != nil {
		go s.hub.Run()
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	if s.log != nil {
		s.log.Infow("driver api listening", "addr", addr)
	}
	return http.ListenAndServe(addr, handler)
}

type solutionResponse struct {
	ID          string             `json:"id"`
	Trades      []domain.Trade     `json:"trades"`
	Prices      map[string]string  `json:"prices"`
	Solver      string             `json:"solver"`
	Gas         uint64             `json:"gas"`
	Score       string             `json:"score"`
}

type solveResponse struct {
	Solutions []solutionResponse `json:"solutions"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var auction domain.Auction
	if err := json.NewDecoder(r.Body).Decode(&auction); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	proposals, err := s.driver.Solve(r.Context(), &auction)
	if err != nil {
		if _, busy := err.(*Busy); busy {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := solveResponse{Solutions: make([]solutionResponse, 0, len(proposals))}
	for _, p := range proposals {
		prices := make(map[string]string, len(p.Solution.ClearingPrices))
		for tok, price := range p.Solution.ClearingPrices {
			prices[tok.Hex()] = price.String()
		}
		resp.Solutions = append(resp.Solutions, solutionResponse{
			ID:     p.SolutionID,
			Trades: p.Solution.Trades,
			Prices: prices,
			Solver: p.Solution.Solver.Hex(),
			Gas:    p.Solution.Gas,
			Score:  scoreString(p.Score),
		})
	}

	if s.hub != nil {
		s.hub.Publish("auctions", struct {
			AuctionID uint64 `json:"auction_id"`
			Count     int    `json:"solution_count"`
		}{auction.ID, len(proposals)})
	}

	respondJSON(w, resp)
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["solution_id"]
	prop, ok := s.driver.Reveal(id)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown solution id")
		return
	}

	calldata, err := prop.Call.Pack()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, struct {
		Calldata  string `json:"calldata"`
		Signature string `json:"signature"`
	}{
		Calldata:  "0x" + hexEncode(calldata),
		Signature: "0x" + hexEncode(firstSignature(prop)),
	})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["solution_id"]
	var body struct {
		DeadlineBlock uint64 `json:"deadline_block"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.driver.Settle(r.Context(), id, body.DeadlineBlock)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, struct {
		TxHash string `json:"tx_hash"`
		Status string `json:"status"`
	}{TxHash: result.TxHash.Hex(), Status: result.Status})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, struct {
		State string `json:"state"`
	}{State: s.driver.State().String()})
}

func firstSignature(p *Proposal) []byte {
	if len(p.Call.Trades) == 0 {
		return nil
	}
	return p.Call.Trades[0].Signature
}

func scoreString(score *big.Int) string {
	if score == nil {
		return "0"
	}
	return score.String()
}

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
}
