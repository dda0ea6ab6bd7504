package executor

import (
	"context"

	"rulemate/internal/mailbox"
)

// labelCache resolves label names to ids for one executor cycle. Labels are
// listed at most once per cycle and created labels are remembered, so two
// moves to a new label create it once.
type labelCache struct {
	mailbox mailbox.Mailbox
	loaded  bool
	ids     map[string]string
}

func newLabelCache(mb mailbox.Mailbox) *labelCache {
	return &labelCache{mailbox: mb, ids: make(map[string]string)}
}

// ensure returns the id of the label called name, creating it if no label
// has that exact name.
func (c *labelCache) ensure(ctx context.Context, name string) (string, error) {
	if !c.loaded {
		labels, err := c.mailbox.ListLabels(ctx)
		if err != nil {
			return "", err
		}
		for _, l := range labels {
			if _, ok := c.ids[l.Name]; !ok {
				c.ids[l.Name] = l.ID
			}
		}
		c.loaded = true
	}

	if id, ok := c.ids[name]; ok {
		return id, nil
	}

	created, err := c.mailbox.CreateLabel(ctx, name)
	if err != nil {
		return "", err
	}
	c.ids[name] = created.ID
	return created.ID, nil
}
