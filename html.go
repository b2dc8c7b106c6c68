/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var body strings.Builder

		body.WriteString(`<!DOCTYPE html><html lang="tr"><head>`)
		body.WriteString(`<meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1">`)
		body.WriteString(fmt.Sprintf(`<link rel="stylesheet" href="%s/assets/spyfall/app.css">`, cfg.prefix))
		body.WriteString(`<title>Casus Kim?</title></head><body><main class="home">`)
		body.WriteString(`<h1>Casus Kim?</h1>`)
		body.WriteString(`<p>Everyone knows the word except the spy. Find them before they find it.</p>`)
		body.WriteString(fmt.Sprintf(`<a class="button" href="%s/room">Create a room</a>`, cfg.prefix))
		body.WriteString(fmt.Sprintf(`<form method="get" action="%s/join">`, cfg.prefix))
		body.WriteString(fmt.Sprintf(`<input name="code" maxlength="%d" placeholder="Room code" autocomplete="off" required>`, roomCodeLength))
		body.WriteString(`<button type="submit">Join</button></form>`)
		body.WriteString(fmt.Sprintf(`<footer>v%s</footer>`, html.EscapeString(releaseVersion)))
		body.WriteString(`</main></body></html>`)

		data := body.String()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveJoin sends the home page's join form to the room it names.
func serveJoin(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
		if len(code) != roomCodeLength || strings.Trim(code, roomCodeChars) != "" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusBadRequest)

			_, _ = w.Write([]byte(newPage("Invalid Code", "That is not a valid room code.")))

			return
		}

		http.Redirect(w, r, cfg.prefix+"/room/"+code, http.StatusSeeOther)
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /room/

User-agent: CCBot
Disallow: /

User-agent: GPTBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
