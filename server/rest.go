package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jmwhea/matchup/common"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
)

// tokenLifetime is how long an issued session token stays valid; clients are
// expected to renew well before this.
const tokenLifetime = 2 * time.Minute

// controlServer owns the profile store and every piece of per-process state
// the REST API needs. Handlers are methods on it rather than free functions
// so tests can stand one up around a store of their choosing.
type controlServer struct {
	mutex sync.Mutex

	store    *Store
	match    *Matchmaker
	watchers *watchHub

	datafile string
	secret   []byte

	// sessions maps a logged-in user id to the issue time of their newest
	// token.
	sessions map[uint64]time.Time

	// now is time.Now outside of tests.
	now func() time.Time

	infoJSON []byte // Cached bytes of the JSON for the /info response
}

func newControlServer(store *Store, datafile string, secret []byte) *controlServer {
	infoJSON, _ := json.Marshal(common.InfoResponse{
		Software: common.SoftwareName,
		Version:  common.SoftwareVersion,
		API:      common.APIVersion,
	})

	return &controlServer{
		store:    store,
		match:    NewMatchmaker(store),
		watchers: newWatchHub(),
		datafile: datafile,
		secret:   secret,
		sessions: make(map[uint64]time.Time),
		now:      time.Now,
		infoJSON: infoJSON,
	}
}

func (s *controlServer) router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/info", s.handleInfo).Methods("GET")
	router.HandleFunc("/login/{userid}", s.handleLogin).Methods("POST")
	router.HandleFunc("/logout/{token}", s.handleLogout).Methods("GET")
	router.HandleFunc("/renew/{token}", s.handleRenew).Methods("GET")
	router.HandleFunc("/profile/{token}", s.handleProfile).Methods("GET")
	router.HandleFunc("/games/all/{token}", s.handleAllGames).Methods("GET")
	router.HandleFunc("/games/{token}", s.handleAddGame).Methods("PUT")
	router.HandleFunc("/games/{token}/{name}", s.handleRemoveGame).Methods("DELETE")
	router.HandleFunc("/timezone/{token}", s.handleSetTimezone).Methods("PUT")
	router.HandleFunc("/availability/{token}/{day}", s.handleSetAvailability).Methods("PUT")
	router.HandleFunc("/availability/{token}/{day}", s.handleAddAvailability).Methods("POST")
	router.HandleFunc("/availability/{token}/{day}", s.handleClearAvailability).Methods("DELETE")
	router.HandleFunc("/ready/{token}", s.handleReady).Methods("GET")
	router.HandleFunc("/watch/{token}", s.handleWatch).Methods("GET")
	return router
}

// StartControlServer begins handling HTTP requests for the REST API, called
// by the main function. The store has already been loaded from datafile;
// every mutation is written straight back to it.
func StartControlServer(config *ini.File, store *Store, datafile string) {
	log.Info("Starting REST API HTTP Server...")

	portKey, err := config.Section("server").GetKey("port")
	if err != nil {
		log.WithError(err).Error("Failed to get server port from configuration file.")
		panic(err)
	}
	port, err2 := portKey.Int()
	if err2 != nil {
		log.WithError(err2).Error("Failed to get server port as integer from configuration file.")
		panic(err2)
	}

	secretKey, err := config.Section("server").GetKey("secret")
	if err != nil {
		log.WithError(err).Error("Failed to get server secret from configuration file.")
		panic(err)
	}

	srv := newControlServer(store, datafile, []byte(secretKey.String()))

	log.WithError(http.ListenAndServe(":"+strconv.Itoa(port), srv.router())).WithField("port", port).Error("Failed to start listening")
}

func (s *controlServer) verifyToken(tokenStr string) (bool, uint64) {
	decodedToken, err := jwt.ParseWithClaims(tokenStr, &jwt.StandardClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Don't forget to validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
		}

		return s.secret, nil
	})

	if err != nil {
		log.WithError(err).Warn("Failed to decode token, probably invalid signature")
		return false, 0
	}

	claims, ok := decodedToken.Claims.(*jwt.StandardClaims)
	if !ok || !decodedToken.Valid {
		return false, 0
	}

	if s.now().After(time.Unix(claims.ExpiresAt, 0)) {
		return false, 0
	}

	uid, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		log.WithField("subject", claims.Subject).Warn("Token subject is not a numeric user id")
		return false, 0
	}

	return true, uid
}

// authMethodVerification checks the JWT and that a live session exists for
// its user, writing the failure status itself.
func (s *controlServer) authMethodVerification(tokenStr string, w http.ResponseWriter) (bool, uint64) {
	valid, uid := s.verifyToken(tokenStr)
	if !valid {
		w.WriteHeader(http.StatusForbidden)
		return false, 0
	}

	if _, exists := s.sessions[uid]; !exists {
		w.WriteHeader(http.StatusNotFound)
		return false, 0
	}

	return true, uid
}

func (s *controlServer) issueToken(uid uint64) (string, error) {
	issuedTime := s.now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"iss": common.SoftwareName,
		"sub": strconv.FormatUint(uid, 10),
		"iat": issuedTime.Unix(),
		"exp": issuedTime.Add(tokenLifetime).Unix(),
	})

	signedToken, err := t.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	s.sessions[uid] = issuedTime
	return signedToken, nil
}

// persistLocked writes the store snapshot after a mutation. Must be called
// with the mutex held. A write failure is fatal: continuing would leave the
// in-memory state silently ahead of the file.
func (s *controlServer) persistLocked() {
	if err := s.store.Save(s.datafile); err != nil {
		log.WithField("datafile", s.datafile).WithError(err).Fatal("Failed to write state snapshot")
	}
}

func (s *controlServer) writeJSON(w http.ResponseWriter, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		log.WithError(err).Error("Failed to encode response json")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Returns server information such as the software version and REST API version
func (s *controlServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.infoJSON)
}

// Handles a login from a client and issues a JWT for their user id. There is
// no credential: the caller-supplied identifier is trusted as-is.
// HTTP Responses:
//   - 400 Bad Request: userid path variable missing or not a number
//   - 409 Conflict: a non-expired session already exists for this user id
//   - 500 Internal Server Error: Failed to encode the JWT
//   - 201 Created: session created, returns a JWT for use with other REST methods
func (s *controlServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	// Lock the mutex so we don't have a race condition on the session map
	s.mutex.Lock()
	defer s.mutex.Unlock()

	vars := mux.Vars(r)
	uid, err := strconv.ParseUint(vars["userid"], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if issuedAt, exists := s.sessions[uid]; exists {
		if s.now().After(issuedAt.Add(tokenLifetime)) {
			// Session expired and was never renewed, replace it
			delete(s.sessions, uid)
		} else {
			w.WriteHeader(http.StatusConflict)
			return
		}
	}

	signedToken, err := s.issueToken(uid)
	if err != nil {
		log.WithField("user", uid).WithError(err).Error("Failed to encode JWT for a login request.")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.WithFields(log.Fields{
		"user":    uid,
		"address": r.RemoteAddr,
	}).Info("New Login")

	w.WriteHeader(http.StatusCreated)
	fmt.Fprint(w, signedToken)
}

// Called by any client with their JWT to end their session. Their profile is
// untouched; only the session goes away.
// HTTP Responses:
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 200 OK: Successfully logged out
func (s *controlServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	success, uid := s.authMethodVerification(mux.Vars(r)["token"], w)
	if !success {
		return
	}

	log.WithFields(log.Fields{
		"user":    uid,
		"address": r.RemoteAddr,
	}).Info("New Logout")

	delete(s.sessions, uid)
	w.WriteHeader(http.StatusOK)
}

// Used by a client to renew their authentication token (JWT), should be
// called every minute or so.
// HTTP Responses:
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 500 Internal Server Error: Failed to encode the JWT
//   - 200 OK: Successfully created new token, returns new JWT
func (s *controlServer) handleRenew(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	success, uid := s.authMethodVerification(mux.Vars(r)["token"], w)
	if !success {
		return
	}

	signedToken, err := s.issueToken(uid)
	if err != nil {
		log.WithField("user", uid).WithError(err).Error("Failed to encode JWT for renewal.")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, signedToken)
}

// Returns the calling user's games, timezone and weekly availability. The
// availability always carries all seven weekday keys.
// HTTP Responses:
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 200 OK: Success, returns ProfileResponse (JSON)
func (s *controlServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	success, uid := s.authMethodVerification(mux.Vars(r)["token"], w)
	if !success {
		return
	}

	tz, _ := s.store.Timezone(uid)
	s.writeJSON(w, common.ProfileResponse{
		Games:        s.store.Games(uid),
		Timezone:     tz,
		Availability: s.store.Availability(uid),
	})
}

// Returns every distinct game title known to the server, for suggestion lists.
// HTTP Responses:
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 200 OK: Success, returns a JSON array of titles
func (s *controlServer) handleAllGames(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	success, _ := s.authMethodVerification(mux.Vars(r)["token"], w)
	if !success {
		return
	}

	s.writeJSON(w, s.match.AllGameNames())
}

// Adds a game to the calling user's list, replacing the stored spelling when
// the title is already present under normalized identity. Form field: name.
// HTTP Responses:
//   - 400 Bad Request: name form field missing or empty
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 204 No Content: game recorded and state persisted
func (s *controlServer) handleAddGame(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	success, uid := s.authMethodVerification(mux.Vars(r)["token"], w)
	if !success {
		return
	}

	name := r.FormValue("name")
	if name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.store.AddGame(uid, name)
	s.persistLocked()
	s.watchers.broadcast(common.ChangeEvent{User: uid, Change: common.ChangeGames})

	w.WriteHeader(http.StatusNoContent)
}

// Removes a game from the calling user's list, matched case- and
// whitespace-insensitively.
// HTTP Responses:
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session for the token's user, or the game isn't in their list
//   - 204 No Content: game removed and state persisted
func (s *controlServer) handleRemoveGame(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	vars := mux.Vars(r)
	success, uid := s.authMethodVerification(vars["token"], w)
	if !success {
		return
	}

	if !s.store.RemoveGame(uid, vars["name"]) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.persistLocked()
	s.watchers.broadcast(common.ChangeEvent{User: uid, Change: common.ChangeGames})

	w.WriteHeader(http.StatusNoContent)
}

// Sets the calling user's home timezone. Form field: tz, an IANA name like
// "America/New_York", validated against the system timezone database before
// it is stored.
// HTTP Responses:
//   - 400 Bad Request: tz form field missing or not a resolvable IANA name
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 204 No Content: timezone stored and state persisted
func (s *controlServer) handleSetTimezone(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	success, uid := s.authMethodVerification(mux.Vars(r)["token"], w)
	if !success {
		return
	}

	tz := r.FormValue("tz")
	if !common.ValidateTimezone(tz) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.store.SetTimezone(uid, tz)
	s.persistLocked()
	s.watchers.broadcast(common.ChangeEvent{User: uid, Change: common.ChangeTimezone})

	w.WriteHeader(http.StatusNoContent)
}

// Replaces the day's availability with the single interval [start, end), in
// the user's local time. Sending both form fields empty clears the day, the
// same as a DELETE.
// HTTP Responses:
//   - 400 Bad Request: day isn't a weekday key, only one bound given, or a bound isn't HH:MM
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 204 No Content: availability stored and state persisted
func (s *controlServer) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	vars := mux.Vars(r)
	success, uid := s.authMethodVerification(vars["token"], w)
	if !success {
		return
	}

	day := vars["day"]
	start := r.FormValue("start")
	end := r.FormValue("end")

	if !common.IsDayKey(day) || (start == "") != (end == "") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if start != "" && (!common.ValidateTime(start) || !common.ValidateTime(end)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.store.SetDayAvailability(uid, day, start, end)
	s.persistLocked()
	s.watchers.broadcast(common.ChangeEvent{User: uid, Change: common.ChangeAvailability})

	w.WriteHeader(http.StatusNoContent)
}

// Adds one more interval [start, end) to the day's availability without
// touching the ones already there.
// HTTP Responses:
//   - 400 Bad Request: day isn't a weekday key or a bound isn't HH:MM
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 409 Conflict: the interval overlaps one already set for that day
//   - 204 No Content: interval added and state persisted
func (s *controlServer) handleAddAvailability(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	vars := mux.Vars(r)
	success, uid := s.authMethodVerification(vars["token"], w)
	if !success {
		return
	}

	day := vars["day"]
	start := r.FormValue("start")
	end := r.FormValue("end")

	if !common.IsDayKey(day) || !common.ValidateTime(start) || !common.ValidateTime(end) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !s.store.AddDayAvailability(uid, day, start, end) {
		w.WriteHeader(http.StatusConflict)
		return
	}

	s.persistLocked()
	s.watchers.broadcast(common.ChangeEvent{User: uid, Change: common.ChangeAvailability})

	w.WriteHeader(http.StatusNoContent)
}

// Clears the day's availability entirely.
// HTTP Responses:
//   - 400 Bad Request: day isn't a weekday key
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 204 No Content: day cleared and state persisted
func (s *controlServer) handleClearAvailability(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	vars := mux.Vars(r)
	success, uid := s.authMethodVerification(vars["token"], w)
	if !success {
		return
	}

	day := vars["day"]
	if !common.IsDayKey(day) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.store.ClearDayAvailability(uid, day)
	s.persistLocked()
	s.watchers.broadcast(common.ChangeEvent{User: uid, Change: common.ChangeAvailability})

	w.WriteHeader(http.StatusNoContent)
}

// Finds every other user who is available right now and shares at least one
// game with the caller. The optional "game" query parameter restricts the
// search to that single title.
// HTTP Responses:
//   - 403 Forbidden: JWT wasn't valid
//   - 404 Not Found: no session exists for the token's user
//   - 200 OK: Success, returns a JSON array of ReadyPlayer entries sorted by user id
func (s *controlServer) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	success, uid := s.authMethodVerification(mux.Vars(r)["token"], w)
	if !success {
		return
	}

	s.writeJSON(w, s.match.FindReadyPlayers(uid, s.now(), r.URL.Query().Get("game")))
}
