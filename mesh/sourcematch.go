package mesh

import "github.com/charmbracelet/log"

// SourceMatchController keeps the radio's hardware source-match table in
// sync with the set of children that have pending indirect traffic (spec
// §4.1). When the table overflows it falls back to a global-disable policy:
// the radio must conservatively set Frame Pending in every ack until a slot
// frees and the table can be re-enabled.
type SourceMatchController struct {
	radio    SourceMatchRadio
	children ChildProvider
	table    *ChildTable
	logger   *log.Logger

	enabled bool // mirrors the hardware table's enabled/disabled state
}

// NewSourceMatchController builds a controller over the given hardware
// table, child provider and indirect-state arena.
func NewSourceMatchController(radio SourceMatchRadio, children ChildProvider, table *ChildTable, logger *log.Logger) *SourceMatchController {
	return &SourceMatchController{
		radio:    radio,
		children: children,
		table:    table,
		logger:   logger,
		enabled:  true,
	}
}

func (c *SourceMatchController) addToTable(child ChildIndex) error {
	s := c.table.state(child)
	if s.useShortAddress {
		return c.radio.AddShort(c.children.ShortAddress(child))
	}
	return c.radio.AddExtended(c.children.ExtAddress(child))
}

func (c *SourceMatchController) removeFromTable(child ChildIndex) error {
	s := c.table.state(child)
	if s.useShortAddress {
		return c.radio.ClearShort(c.children.ShortAddress(child))
	}
	return c.radio.ClearExtended(c.children.ExtAddress(child))
}

// IncrementMessageCount bumps the child's queued-message count. On the
// 0→1 transition it attempts to insert the child into the hardware table;
// on overflow it marks the child pending and globally disables the table
// (spec §4.1 "Fallback policy when hardware table overflows").
func (c *SourceMatchController) IncrementMessageCount(child ChildIndex) {
	s := c.table.state(child)
	wasZero := s.queuedCount == 0
	s.incrementMessageCount()

	if !wasZero {
		return
	}

	if err := c.addToTable(child); err != nil {
		s.sourceMatchPending = true
		c.disableForOverflow()
		return
	}
	s.sourceMatchPending = false
}

// DecrementMessageCount decrements the child's queued-message count. On the
// transition to zero it removes the child from the hardware table and, if
// any other child is waiting on a pending slot, promotes one.
func (c *SourceMatchController) DecrementMessageCount(child ChildIndex) {
	s := c.table.state(child)
	s.decrementMessageCount()

	if s.queuedCount != 0 {
		return
	}

	if s.sourceMatchPending {
		s.sourceMatchPending = false
		return
	}

	if err := c.removeFromTable(child); err != nil {
		if c.logger != nil {
			c.logger.Warn("source-match remove failed", "child", child, "err", err)
		}
	}

	c.promotePending()
}

// ResetMessageCount forces the child's count to zero and removes it from
// the hardware table regardless of the count it held.
func (c *SourceMatchController) ResetMessageCount(child ChildIndex) {
	s := c.table.state(child)
	hadEntry := s.queuedCount > 0 && !s.sourceMatchPending
	s.resetMessageCount()
	s.sourceMatchPending = false

	if hadEntry {
		if err := c.removeFromTable(child); err != nil && c.logger != nil {
			c.logger.Warn("source-match remove failed", "child", child, "err", err)
		}
		c.promotePending()
	}
}

// SetSrcMatchAsShort switches the address form used to track child in the
// hardware table. Switching forms is a remove-then-reinsert (spec §4.1).
func (c *SourceMatchController) SetSrcMatchAsShort(child ChildIndex, useShort bool) {
	s := c.table.state(child)
	if s.useShortAddress == useShort {
		return
	}

	hadEntry := s.queuedCount > 0 && !s.sourceMatchPending
	if hadEntry {
		if err := c.removeFromTable(child); err != nil && c.logger != nil {
			c.logger.Warn("source-match remove failed during address-form switch", "child", child, "err", err)
		}
	}

	s.useShortAddress = useShort

	if !hadEntry {
		return
	}

	if err := c.addToTable(child); err != nil {
		s.sourceMatchPending = true
		c.disableForOverflow()
		return
	}
}

// disableForOverflow puts the hardware table into its conservative,
// globally-disabled state: the radio must set Frame Pending on every ack
// until re-enabled.
func (c *SourceMatchController) disableForOverflow() {
	if !c.enabled {
		return
	}
	c.enabled = false
	c.radio.Disable()
	if c.logger != nil {
		c.logger.Warn("source-match table full, disabling table (frame-pending forced on every ack)")
	}
}

// promotePending tries to move any source-match-pending child into the
// table now that a slot may have freed, in a deterministic order
// (ascending child index, per spec §4.1 "arbitrary but deterministic
// order"). Re-enables the table once every pending child has been placed
// or no pending children remain.
func (c *SourceMatchController) promotePending() {
	for _, child := range c.children.Iterate(FilterAnyExceptInvalid) {
		s := c.table.state(child)
		if !s.sourceMatchPending {
			continue
		}
		if err := c.addToTable(child); err != nil {
			// Table still full; nothing more to promote right now.
			return
		}
		s.sourceMatchPending = false
	}

	if !c.enabled {
		c.enabled = true
		c.radio.Enable()
		if c.logger != nil {
			c.logger.Debug("source-match table re-enabled")
		}
	}
}
