package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func TestPlainGateRequiresExactMatch(t *testing.T) {
	gate := newHostGate(&Config{hostPassword: "jellybeans"})

	assert.NoError(t, gate.Check("jellybeans"))

	for _, attempt := range []string{"", "Jellybeans", "jellybeans ", " jellybeans", "jelly", "jellybeansjellybeans"} {
		assert.ErrorIs(t, gate.Check(attempt), ErrBadPassword, "%q", attempt)
	}
}

func TestBcryptGate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("gumdrops"), bcrypt.MinCost)
	assert.NoError(t, err)

	gate := newHostGate(&Config{hostPasswordHash: string(hash)})

	assert.NoError(t, gate.Check("gumdrops"))
	assert.ErrorIs(t, gate.Check("gumdrop"), ErrBadPassword)
	assert.ErrorIs(t, gate.Check(string(hash)), ErrBadPassword)
}

func TestClosedGateRefusesEverything(t *testing.T) {
	gate := newHostGate(&Config{})

	assert.ErrorIs(t, gate.Check(""), ErrHostDisabled)
	assert.ErrorIs(t, gate.Check("anything"), ErrHostDisabled)
}
