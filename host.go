/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// HostGate decides whether a submitted password grants the host role.
type HostGate interface {
	Check(password string) error
}

type plainGate struct {
	password []byte
}

func (g plainGate) Check(password string) error {
	if subtle.ConstantTimeCompare(g.password, []byte(password)) != 1 {
		return ErrBadPassword
	}
	return nil
}

type bcryptGate struct {
	hash []byte
}

func (g bcryptGate) Check(password string) error {
	if bcrypt.CompareHashAndPassword(g.hash, []byte(password)) != nil {
		return ErrBadPassword
	}
	return nil
}

type closedGate struct{}

func (closedGate) Check(string) error {
	return ErrHostDisabled
}

// newHostGate expects a validated Config.
func newHostGate(cfg *Config) HostGate {
	switch {
	case cfg.hostPasswordHash != "":
		return bcryptGate{hash: []byte(cfg.hostPasswordHash)}
	case cfg.hostPassword != "":
		return plainGate{password: []byte(cfg.hostPassword)}
	default:
		return closedGate{}
	}
}
