package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/pkg/anthropic"
)

const draftMaxTokens = 400

const draftPersona = `You draft short Facebook Messenger replies on behalf of a motorcycle racing mindset coach. The coach sells a free two-day training (the Podium Contenders Blueprint) that leads to a strategy call.

Write the way the example replies do: warm, direct, one or two short paragraphs, UK English, no hard sell. Ask a question back when it keeps the conversation going. Never invent details about the rider. Reply with the message text only.`

// Drafter asks Claude for a fresh reply grounded on retrieved past
// exchanges.
type Drafter struct {
	client anthropic.Client
	model  string
}

// NewDrafter creates a drafter for the given model.
func NewDrafter(client anthropic.Client, model string) *Drafter {
	return &Drafter{client: client, model: model}
}

// Draft writes a reply to the incoming message. The retrieved
// suggestions are included as style examples; calling with none still
// works but drafts on persona alone.
func (d *Drafter) Draft(ctx context.Context, incoming string, examples []Suggestion) (string, error) {
	if strings.TrimSpace(incoming) == "" {
		return "", eris.New("reply: incoming message is empty")
	}

	temp := 0.7
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       d.model,
		MaxTokens:   draftMaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(draftSystem(examples)),
		Messages:    []anthropic.Message{{Role: "user", Content: incoming}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "reply: draft")
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	draft := strings.TrimSpace(text.String())
	if draft == "" {
		return "", eris.New("reply: model returned no text")
	}

	resp.Usage.LogCost(d.model, "reply_draft")
	zap.L().Info("reply: draft generated",
		zap.Int("examples", len(examples)),
		zap.Int("chars", len(draft)),
	)
	return draft, nil
}

// draftSystem appends the retrieved exchanges to the persona so the
// model can mirror past tone.
func draftSystem(examples []Suggestion) string {
	if len(examples) == 0 {
		return draftPersona
	}

	var b strings.Builder
	b.WriteString(draftPersona)
	b.WriteString("\n\nPast exchanges closest to this message:\n")
	for i, ex := range examples {
		fmt.Fprintf(&b, "\nExample %d\nProspect: %s\nCoach: %s\n", i+1, ex.Trigger, ex.Reply)
	}
	return b.String()
}
