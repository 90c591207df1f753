package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/autopatchd/internal/configanalyzer"
	"github.com/fyrsmithlabs/autopatchd/internal/ticket"
)

var _ configanalyzer.Disambiguator = (*Client)(nil)

const disambiguateSystemPrompt = "You classify support tickets against known system configurations. " +
	"Answer only with a JSON object."

type choice struct {
	Choice int    `json:"choice"`
	Reason string `json:"reason,omitempty"`
}

// Disambiguate asks the model which configuration the ticket is about.
// ok is false when the model declines (choice 0) or answers out of range.
func (c *Client) Disambiguate(ctx context.Context, t *ticket.Ticket, candidates []configanalyzer.Configuration) (configanalyzer.Configuration, bool, error) {
	if len(candidates) == 0 {
		return configanalyzer.Configuration{}, false, nil
	}
	ctx, span := c.tracer.Start(ctx, "llm.Disambiguate",
		trace.WithAttributes(
			attribute.String("ticket.id", t.ID),
			attribute.Int("candidates", len(candidates)),
		))
	defer span.End()

	raw, err := c.complete(ctx, disambiguateSystemPrompt, buildDisambiguationPrompt(t, candidates))
	if err != nil {
		RequestsTotal.WithLabelValues("disambiguate", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return configanalyzer.Configuration{}, false, err
	}

	ch, err := parseChoice(raw)
	if err != nil {
		RequestsTotal.WithLabelValues("disambiguate", "invalid").Inc()
		span.RecordError(err)
		return configanalyzer.Configuration{}, false, err
	}
	if ch.Choice < 1 || ch.Choice > len(candidates) {
		RequestsTotal.WithLabelValues("disambiguate", "declined").Inc()
		return configanalyzer.Configuration{}, false, nil
	}

	picked := candidates[ch.Choice-1]
	RequestsTotal.WithLabelValues("disambiguate", "ok").Inc()
	span.SetAttributes(attribute.String("config.name", picked.Name))
	c.logger.Debug("configuration disambiguated",
		zap.String("ticket_id", t.ID),
		zap.String("name", picked.Name),
		zap.String("reason", ch.Reason))
	return picked, true, nil
}

func parseChoice(raw string) (choice, error) {
	obj, err := extractJSON(raw)
	if err != nil {
		return choice{}, err
	}
	var ch choice
	if err := json.Unmarshal([]byte(obj), &ch); err != nil {
		return choice{}, fmt.Errorf("decoding choice: %w", err)
	}
	return ch, nil
}

func buildDisambiguationPrompt(t *ticket.Ticket, candidates []configanalyzer.Configuration) string {
	var b strings.Builder
	b.WriteString("Ticket:\n")
	b.WriteString(truncate(t.Text(), 2000))
	b.WriteString("\n\nCandidate configurations:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. [%s] %s (%s): %s\n", i+1, c.Type, c.Name, c.Location, truncate(c.Description, 200))
	}
	b.WriteString("\nWhich configuration is the root cause of the ticket? ")
	b.WriteString(`Reply with {"choice": <number>, "reason": "<short reason>"}. `)
	b.WriteString(`Use {"choice": 0} if none fits.`)
	return b.String()
}
