/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

var (
	ErrBadRequest      = errors.New("malformed request")
	ErrEmptyCategory   = errors.New("category has no words")
	ErrInvalidGuess    = errors.New("invalid guess")
	ErrInvalidNickname = errors.New("invalid nickname")
	ErrInvalidPhase    = errors.New("action is not allowed in the current phase")
	ErrInvalidRoomSize = errors.New("not enough players to start a round")
	ErrInvalidSettings = errors.New("invalid room settings")
	ErrNotHost         = errors.New("only the host may do that")
	ErrNotPlayer       = errors.New("not a player in this room")
	ErrNotSpy          = errors.New("only spies may guess the word")
	ErrRoomFull        = errors.New("room is full")
	ErrRoomNotFound    = errors.New("room not found")
	ErrStoreWrite      = errors.New("store write failed")
)

// errorCode maps an error to the short code sent to websocket clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrEmptyCategory):
		return "empty_category"
	case errors.Is(err, ErrInvalidGuess):
		return "invalid_guess"
	case errors.Is(err, ErrInvalidNickname):
		return "invalid_nickname"
	case errors.Is(err, ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, ErrInvalidRoomSize):
		return "invalid_room_size"
	case errors.Is(err, ErrInvalidSettings):
		return "invalid_settings"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrNotPlayer):
		return "not_player"
	case errors.Is(err, ErrNotSpy):
		return "not_spy"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrStoreWrite):
		return "store_write_failure"
	default:
		return "internal"
	}
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func errorf(format string, args ...any) {
	fmt.Printf("%s | ERROR: "+format+"\n", append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
