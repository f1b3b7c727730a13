package corrid

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCycleIDFromContext(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{
			name:     "with cycle ID",
			ctx:      WithCycleID(context.Background(), "test-cycle-123"),
			expected: "test-cycle-123",
		},
		{
			name:     "without cycle ID",
			ctx:      context.Background(),
			expected: "",
		},
		{
			name:     "with invalid type in context",
			ctx:      context.WithValue(context.Background(), cycleIDKey, 12345),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CycleIDFromContext(tt.ctx))
		})
	}
}

func TestTickIDFromContext(t *testing.T) {
	ctx := WithTickID(context.Background(), "test-tick-456")
	assert.Equal(t, "test-tick-456", TickIDFromContext(ctx))
	assert.Empty(t, CycleIDFromContext(ctx), "tick id must not leak into cycle id")
}

func TestNew_GeneratesValidUUID(t *testing.T) {
	id := New()
	assert.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err, "generated ID should be a valid UUID")
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		seen[New()] = true
	}
	assert.Equal(t, 10, len(seen))
}

func TestCycleAndTickKeysDoNotCollide(t *testing.T) {
	ctx := WithCycleID(context.Background(), "cycle-1")
	ctx = WithTickID(ctx, "tick-1")

	assert.Equal(t, "cycle-1", CycleIDFromContext(ctx))
	assert.Equal(t, "tick-1", TickIDFromContext(ctx))
}
