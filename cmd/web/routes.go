package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/AdamBeresnev/bracket-engine/internal/bracket"
	"github.com/AdamBeresnev/bracket-engine/internal/httputil"
	"github.com/AdamBeresnev/bracket-engine/internal/match"
	"github.com/AdamBeresnev/bracket-engine/internal/middleware"
	"github.com/AdamBeresnev/bracket-engine/internal/notify"
	"github.com/AdamBeresnev/bracket-engine/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type application struct {
	svc     *service.Service
	hub     *notify.Hub
	metrics http.Handler
	origins []string
}

type proofBody struct {
	// Evidence is base64 in JSON.
	Evidence    []byte   `json:"evidence,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	Links       []string `json:"links,omitempty"`
}

func (p proofBody) proof() service.Proof {
	return service.Proof{Blob: p.Evidence, ContentType: p.ContentType, Links: p.Links}
}

type generateBody struct {
	Format       string                        `json:"format"`
	Seeding      string                        `json:"seeding"`
	Regenerate   bool                          `json:"regenerate"`
	RandomSeed   uint64                        `json:"random_seed"`
	Manual       map[bracket.ParticipantID]int `json:"manual"`
	Params       bracket.Params                `json:"params"`
	BracketReset *bool                         `json:"bracket_reset"`
}

func (g generateBody) request() (service.GenerateRequest, error) {
	format, err := bracket.ParseFormat(g.Format)
	if err != nil {
		return service.GenerateRequest{}, err
	}
	method := bracket.SeedRanked
	if g.Seeding != "" {
		if method, err = bracket.ParseSeedingMethod(g.Seeding); err != nil {
			return service.GenerateRequest{}, err
		}
	}
	return service.GenerateRequest{
		Format:       format,
		Method:       method,
		Regenerate:   g.Regenerate,
		RandomSeed:   g.RandomSeed,
		Manual:       g.Manual,
		Params:       g.Params,
		BracketReset: g.BracketReset,
	}, nil
}

func actorID(r *http.Request) string {
	actor, _ := middleware.GetActorFromContext(r.Context())
	return actor.ID
}

// participant is the acting participant; anonymous requests cannot act for
// anyone.
func participant(w http.ResponseWriter, r *http.Request) (bracket.ParticipantID, bool) {
	id := actorID(r)
	if id == "" {
		httputil.Error(w, "Missing actor", bracket.ErrNotParticipant)
		return "", false
	}
	return bracket.ParticipantID(id), true
}

func nodeParam(w http.ResponseWriter, r *http.Request) (bracket.NodeID, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "node"))
	if err != nil || n < 0 {
		httputil.BadRequest(w, "Invalid node id", err)
		return 0, false
	}
	return bracket.NodeID(n), true
}

func newRouter(app *application) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.ActorHeader, middleware.RoleHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.LoadActor)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", app.metrics)

	r.Get("/ws/tournaments/{id}", func(w http.ResponseWriter, r *http.Request) {
		app.hub.ServeWS(w, r, chi.URLParam(r, "id"))
	})

	r.Get("/evidence/{ref}", func(w http.ResponseWriter, r *http.Request) {
		blob, err := app.svc.Evidence(r.Context(), chi.URLParam(r, "ref"))
		if err != nil {
			httputil.Error(w, "Failed to fetch evidence", err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(blob)
	})

	r.With(middleware.RequireOrganizer).Post("/rankings/{participant}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Score float64 `json:"score"`
		}
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.BadRequest(w, "Invalid ranking body", err)
			return
		}
		id := bracket.ParticipantID(chi.URLParam(r, "participant"))
		if err := app.svc.SetRankingScore(r.Context(), id, body.Score); err != nil {
			httputil.Error(w, "Failed to set ranking", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.With(middleware.RequireOrganizer).Get("/disputes", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, app.svc.OpenDisputes())
	})

	r.Route("/tournaments", app.tournamentRoutes)
	r.Route("/matches/{id}", app.matchRoutes)

	return r
}

func (app *application) tournamentRoutes(r chi.Router) {
	r.With(middleware.RequireOrganizer).Post("/", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.BadRequest(w, "Invalid tournament body", err)
			return
		}
		t, err := app.svc.CreateTournament(r.Context(), body.Name)
		if err != nil {
			httputil.Error(w, "Failed to create tournament", err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, t)
	})

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			t, err := app.svc.GetTournament(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				httputil.Error(w, "Failed to get tournament", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, t)
		})

		r.Get("/participants", func(w http.ResponseWriter, r *http.Request) {
			ps, err := app.svc.ListParticipants(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				httputil.Error(w, "Failed to list participants", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, ps)
		})

		r.With(middleware.RequireOrganizer).Post("/participants", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}
			if err := httputil.DecodeJSON(r, &body); err != nil {
				httputil.BadRequest(w, "Invalid participant body", err)
				return
			}
			if len(body.Name) > 50 {
				httputil.BadRequest(w, "Participant name exceeds 50 characters", nil)
				return
			}
			if err := app.svc.Register(r.Context(), chi.URLParam(r, "id"), bracket.ParticipantID(body.ID), body.Name); err != nil {
				httputil.Error(w, "Failed to register participant", err)
				return
			}
			w.WriteHeader(http.StatusCreated)
		})

		r.Get("/bracket", func(w http.ResponseWriter, r *http.Request) {
			snap, err := app.svc.GetBracketView(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				httputil.Error(w, "Failed to get bracket", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, bracket.PrepareView(snap.Bracket))
		})

		r.With(middleware.RequireOrganizer).Post("/bracket", func(w http.ResponseWriter, r *http.Request) {
			var body generateBody
			if err := httputil.DecodeJSON(r, &body); err != nil {
				httputil.BadRequest(w, "Invalid bracket body", err)
				return
			}
			req, err := body.request()
			if err != nil {
				httputil.Error(w, "Invalid bracket request", err)
				return
			}
			snap, err := app.svc.GenerateBracket(r.Context(), chi.URLParam(r, "id"), req)
			if err != nil {
				httputil.Error(w, "Failed to generate bracket", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, bracket.PrepareView(snap.Bracket))
		})

		r.Get("/standings", func(w http.ResponseWriter, r *http.Request) {
			standings, err := app.svc.GetStandings(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				httputil.Error(w, "Failed to get standings", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, standings)
		})

		r.Get("/matches", func(w http.ResponseWriter, r *http.Request) {
			var states []match.State
			for _, s := range r.URL.Query()["state"] {
				states = append(states, match.State(s))
			}
			ms, err := app.svc.Matches(r.Context(), chi.URLParam(r, "id"), states...)
			if err != nil {
				httputil.Error(w, "Failed to list matches", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, ms)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOrganizer)

			r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					Reason string `json:"reason"`
				}
				if err := httputil.DecodeJSON(r, &body); err != nil {
					httputil.BadRequest(w, "Invalid cancel body", err)
					return
				}
				n, err := app.svc.CancelTournament(r.Context(), chi.URLParam(r, "id"), actorID(r), body.Reason)
				if err != nil {
					httputil.Error(w, "Failed to cancel tournament", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, map[string]int{"cancelled_matches": n})
			})

			r.Post("/nodes/{node}/advance", func(w http.ResponseWriter, r *http.Request) {
				node, ok := nodeParam(w, r)
				if !ok {
					return
				}
				var body struct {
					Winner string `json:"winner"`
				}
				if err := httputil.DecodeJSON(r, &body); err != nil {
					httputil.BadRequest(w, "Invalid advance body", err)
					return
				}
				snap, err := app.svc.AdvanceManually(r.Context(), chi.URLParam(r, "id"), node, bracket.ParticipantID(body.Winner))
				if err != nil {
					httputil.Error(w, "Failed to advance node", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, bracket.PrepareView(snap.Bracket))
			})

			r.Post("/nodes/{node}/unfreeze", func(w http.ResponseWriter, r *http.Request) {
				node, ok := nodeParam(w, r)
				if !ok {
					return
				}
				snap, err := app.svc.Unfreeze(r.Context(), chi.URLParam(r, "id"), node)
				if err != nil {
					httputil.Error(w, "Failed to unfreeze node", err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, bracket.PrepareView(snap.Bracket))
			})
		})
	})
}

func (app *application) matchRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		m, err := app.svc.GetMatch(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httputil.Error(w, "Failed to get match", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, m)
	})

	r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		ts, err := app.svc.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httputil.Error(w, "Failed to get match history", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, ts)
	})

	r.Post("/check-in", func(w http.ResponseWriter, r *http.Request) {
		p, ok := participant(w, r)
		if !ok {
			return
		}
		m, err := app.svc.CheckIn(r.Context(), chi.URLParam(r, "id"), p)
		if err != nil {
			httputil.Error(w, "Failed to check in", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, m)
	})

	r.Post("/results", func(w http.ResponseWriter, r *http.Request) {
		p, ok := participant(w, r)
		if !ok {
			return
		}
		var body struct {
			Score bracket.Score `json:"score"`
			proofBody
		}
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.BadRequest(w, "Invalid result body", err)
			return
		}
		m, err := app.svc.SubmitResult(r.Context(), chi.URLParam(r, "id"), p, body.Score, body.proof())
		if err != nil {
			httputil.Error(w, "Failed to submit result", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, m)
	})

	r.Post("/dispute", func(w http.ResponseWriter, r *http.Request) {
		p, ok := participant(w, r)
		if !ok {
			return
		}
		var body struct {
			Note string `json:"note"`
			proofBody
		}
		if err := httputil.DecodeJSON(r, &body); err != nil {
			httputil.BadRequest(w, "Invalid dispute body", err)
			return
		}
		m, err := app.svc.FlagDispute(r.Context(), chi.URLParam(r, "id"), p, body.Note, body.proof())
		if err != nil {
			httputil.Error(w, "Failed to flag dispute", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, m)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOrganizer)

		r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
			m, err := app.svc.StartMatch(r.Context(), chi.URLParam(r, "id"), actorID(r))
			if err != nil {
				httputil.Error(w, "Failed to start match", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, m)
		})

		r.Post("/finish", func(w http.ResponseWriter, r *http.Request) {
			m, err := app.svc.FinishMatch(r.Context(), chi.URLParam(r, "id"), actorID(r))
			if err != nil {
				httputil.Error(w, "Failed to finish match", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, m)
		})

		r.Post("/resolve", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Score bracket.Score `json:"score"`
				Notes string        `json:"notes"`
			}
			if err := httputil.DecodeJSON(r, &body); err != nil {
				httputil.BadRequest(w, "Invalid resolution body", err)
				return
			}
			m, err := app.svc.ResolveDispute(r.Context(), chi.URLParam(r, "id"), body.Score, actorID(r), body.Notes)
			if err != nil {
				httputil.Error(w, "Failed to resolve dispute", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, m)
		})

		r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Reason string `json:"reason"`
			}
			if err := httputil.DecodeJSON(r, &body); err != nil {
				httputil.BadRequest(w, "Invalid cancel body", err)
				return
			}
			m, err := app.svc.CancelMatch(r.Context(), chi.URLParam(r, "id"), actorID(r), body.Reason)
			if err != nil {
				httputil.Error(w, "Failed to cancel match", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, m)
		})

		r.Post("/reschedule", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				At time.Time `json:"at"`
			}
			if err := httputil.DecodeJSON(r, &body); err != nil {
				httputil.BadRequest(w, "Invalid reschedule body", err)
				return
			}
			m, err := app.svc.RescheduleMatch(r.Context(), chi.URLParam(r, "id"), body.At, actorID(r))
			if err != nil {
				httputil.Error(w, "Failed to reschedule match", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, m)
		})
	})
}
