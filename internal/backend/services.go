package backend

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/kingrea/standin/internal/config"
	"github.com/kingrea/standin/internal/swipe"
)

// Services bundles the three service adapters.
type Services struct {
	Users      *Users
	Social     *Social
	Multimedia *Multimedia
}

// FromConfig builds one client per service. Each client gets its own
// limiter so a slow gallery cannot starve like submissions.
func FromConfig(cfg *config.Config, logger Logger) *Services {
	services := cfg.Services()
	httpCfg := cfg.HTTP()
	newClient := func(name, baseURL string) *Client {
		return NewClient(name, baseURL,
			WithHTTPClient(&http.Client{Timeout: httpCfg.Timeout}),
			WithLimiter(rate.NewLimiter(rate.Limit(httpCfg.RequestsPerSecond), httpCfg.Burst)),
			WithLogger(logger),
		)
	}
	return &Services{
		Users:      NewUsers(newClient("users", services.Users.BaseURL)),
		Social:     NewSocial(newClient("social", services.Social.BaseURL)),
		Multimedia: NewMultimedia(newClient("multimedia", services.Multimedia.BaseURL)),
	}
}

// Controller wires the services into a fresh swipe controller.
func (s *Services) Controller(logger swipe.Logger) *swipe.Controller {
	enricher := swipe.NewEnricher(s.Users, s.Multimedia, swipe.WithEnricherLogger(logger))
	return swipe.NewController(s.Social, enricher, swipe.NewProcessor(s.Social, logger), swipe.WithLogger(logger))
}
