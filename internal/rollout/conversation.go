package rollout

import (
	"context"
)

// Conversation is the plain-text orchestrator variant: evaluator-as-user
// and target alternate turns, no tools involved.
type Conversation struct {
	base
}

func newConversation(p Params) *Conversation {
	return &Conversation{base: newBase(p)}
}

// AdvanceTurn performs the next state transition. Exactly one target
// message and at most one evaluator message are added per TURN step.
func (c *Conversation) AdvanceTurn(ctx context.Context) error {
	switch c.state {
	case stateSysprompt:
		return c.generateSysprompt(ctx)
	case stateKickoff:
		return c.kickoff(ctx)
	case stateTurn:
		return c.turn(ctx)
	default:
		return nil
	}
}

func (c *Conversation) turn(ctx context.Context) error {
	comp, err := c.completeTarget(ctx, nil, "")
	if err != nil {
		return err
	}
	if err := c.recordTargetReply(comp); err != nil {
		return err
	}

	if c.targetTurns >= c.cfg.MaxTurns {
		c.state = stateTerminated
		return nil
	}

	return c.userTurn(ctx)
}
