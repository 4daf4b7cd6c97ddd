// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package emit

import "github.com/nikandfor/errors"

func (m *Machine) push(mask []bool) { m.masks = append(m.masks, mask) }
func (m *Machine) pop()             { m.masks = m.masks[:len(m.masks)-1] }

func anyOn(mask []bool) bool {
	for _, on := range mask {
		if on {
			return true
		}
	}
	return false
}

// If implements Builder.
func (m *Machine) If(cond Value, then, els func() error) error {
	c, err := asVec(cond)
	if err != nil {
		return err
	}

	if !c.T.Wide {
		switch {
		case c.truth(0) && then != nil:
			return then()
		case !c.truth(0) && els != nil:
			return els()
		}
		return nil
	}

	cur := m.mask()
	thenMask := make([]bool, m.lanes)
	elseMask := make([]bool, m.lanes)
	for i := range cur {
		thenMask[i] = cur[i] && c.truth(i)
		elseMask[i] = cur[i] && !c.truth(i)
	}

	if then != nil && anyOn(thenMask) {
		m.push(thenMask)
		err := then()
		m.pop()
		if err != nil {
			return err
		}
	}
	if els != nil && anyOn(elseMask) {
		m.push(elseMask)
		err := els()
		m.pop()
		if err != nil {
			return err
		}
	}
	return nil
}

// Loop implements Builder.
func (m *Machine) Loop(wide, testFirst bool, test func() (Value, error), body func() error) error {
	if wide {
		return m.wideLoop(testFirst, test, body)
	}

	for iter := 0; ; iter++ {
		if m.maxIter > 0 && iter >= m.maxIter {
			return errors.Wrap(ErrIterationLimit, "%d iterations", iter)
		}
		if testFirst || iter > 0 {
			v, err := test()
			if err != nil {
				return err
			}
			c, err := asVec(v)
			if err != nil {
				return err
			}
			if c.T.Wide {
				return errors.Wrap(ErrShape, "uniform loop tested on %v", c.T)
			}
			if !c.truth(0) {
				return nil
			}
		}

		err := body()
		if errors.Is(err, ErrBreak) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (m *Machine) wideLoop(testFirst bool, test func() (Value, error), body func() error) error {
	m.broken = append(m.broken, make([]bool, m.lanes))

	running := m.Mask()

	for iter := 0; ; iter++ {
		if m.maxIter > 0 && iter >= m.maxIter {
			return errors.Wrap(ErrIterationLimit, "%d iterations", iter)
		}

		if testFirst || iter > 0 {
			m.push(running)
			v, err := test()
			m.pop()
			if err != nil {
				return err
			}
			c, err := asVec(v)
			if err != nil {
				return err
			}
			for i := range running {
				running[i] = running[i] && c.truth(i)
			}
		}

		if !anyOn(running) {
			return nil
		}

		m.push(running)
		err := body()
		running = m.mask()
		m.pop()
		if err != nil {
			return err
		}
	}
}

// MaskedBreak implements Builder.
func (m *Machine) MaskedBreak() error {
	if len(m.broken) == 0 {
		return errors.New("masked break outside of a wide loop")
	}
	cur := m.mask()
	br := m.broken[len(m.broken)-1]
	for i, on := range cur {
		if on {
			br[i] = true
		}
	}
	return nil
}

// ClearMaskBreak implements Builder.
func (m *Machine) ClearMaskBreak() {
	if len(m.broken) > 0 {
		m.broken = m.broken[:len(m.broken)-1]
	}
}

// BreakDepth returns the number of wide loops whose broken-lane state has
// not been cleared.
func (m *Machine) BreakDepth() int { return len(m.broken) }
