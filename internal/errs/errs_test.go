// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDeferral_TrueOnlyForModelUnavailable(t *testing.T) {
	assert.True(t, IsDeferral(ErrModelUnavailable))
	assert.True(t, IsDeferral(fmt.Errorf("resolve capability text: %w", ErrModelUnavailable)))

	assert.False(t, IsDeferral(ErrNotFound))
	assert.False(t, IsDeferral(ErrTimeout))
	assert.False(t, IsDeferral(errors.New("unrelated")))
	assert.False(t, IsDeferral(nil))
}

func TestSentinels_AreDistinctAndWrappable(t *testing.T) {
	sentinels := []error{ErrNotFound, ErrBadInput, ErrModelUnavailable, ErrParse, ErrVectorization, ErrTimeout, ErrTransient, ErrFatal}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v must not match %v", a, b)
		}
	}

	wrapped := fmt.Errorf("batch item 3: %w", ErrParse)
	assert.ErrorIs(t, wrapped, ErrParse)
}
