// Package resolver converts indirect (magnet) stream links into direct URLs
// through a third-party resolution service. Resolution is strictly
// best-effort per stream: any step failure keeps the original stream
// unchanged, and no failure ever removes a stream or fails the response.
package resolver

import (
	"context"
	"log"
	"strings"

	"github.com/sourcegraph/conc"

	"streamhub/models"
)

// ProviderNone disables resolution.
const ProviderNone = "none"

// Provider is one resolution service capable of turning a magnet link into a
// direct download URL.
type Provider interface {
	Name() string
	// Tag is the short label suffixed onto a resolved stream's source.
	Tag() string
	ResolveMagnet(ctx context.Context, magnet string) (string, error)
}

var providerFactories = map[string]func(token string) Provider{}

// RegisterProvider makes a resolution service available under a name.
// Called from provider implementations' init functions.
func RegisterProvider(name string, factory func(token string) Provider) {
	providerFactories[strings.ToLower(name)] = factory
}

// Service applies a resolution provider to a stream list.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Resolve rewrites each magnet stream's URL through the named provider.
// The no-op provider or an absent token returns the input unchanged, as does
// an unknown provider name. Non-magnet streams pass through untouched in
// their original positions; magnet streams are resolved concurrently since
// each resolution is independent and failures are isolated.
func (s *Service) Resolve(ctx context.Context, streams []models.Stream, provider, token string) []models.Stream {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if token == "" || provider == "" || provider == ProviderNone {
		return streams
	}
	factory, ok := providerFactories[provider]
	if !ok {
		log.Printf("[resolver] unknown provider %q, passing streams through", provider)
		return streams
	}
	client := factory(token)

	out := make([]models.Stream, len(streams))
	var wg conc.WaitGroup
	for i, stream := range streams {
		if !strings.HasPrefix(stream.URL, "magnet:") {
			out[i] = stream
			continue
		}
		i, stream := i, stream
		wg.Go(func() {
			direct, err := client.ResolveMagnet(ctx, stream.URL)
			if err != nil {
				log.Printf("[resolver] %s failed for stream %s: %v", client.Name(), stream.ID, err)
				out[i] = stream
				return
			}
			resolved := stream
			resolved.URL = direct
			label := resolved.Source
			if label == "" {
				label = "StreamHub"
			}
			resolved.Source = label + " (" + client.Tag() + ")"
			out[i] = resolved
		})
	}
	wg.Wait()
	return out
}
