package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmwhea/matchup/common"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// goroutine that renews the session token before the server expires it
func continuousRenewal(client *restClient) {
	ticker := time.NewTicker(30 * time.Second)
	for range ticker.C {
		client.mutex.Lock()
		if client.stop {
			client.mutex.Unlock()
			break
		}

		client.renewToken()
		client.mutex.Unlock()
	}
}

type restClient struct {
	rest      *resty.Client
	serverURL string

	serverInfo common.InfoResponse

	stop          bool
	authToken     string
	lastRenewedAt time.Time
	mutex         *sync.Mutex

	watchConn *websocket.Conn
}

func createRestClient(serverURL string) *restClient {
	client := new(restClient)
	client.stop = true
	client.serverURL = strings.TrimSuffix(serverURL, "/")
	client.rest = resty.New()
	client.mutex = &sync.Mutex{}
	return client
}

func (r *restClient) checkConnected() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.authToken == "" {
		return false
	}

	expireTime := r.lastRenewedAt.Add(2 * time.Minute)
	if time.Now().After(expireTime) {
		// Token was expired, we're not connected anymore
		r.authToken = ""
		return false
	}

	return true
}

// not thread safe, lock the mutex before calling this
func (r *restClient) renewToken() {
	url := r.serverURL + "/renew/" + r.authToken
	response, err := r.rest.R().Get(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Warn("Failed to renew token.")
		return
	} else if response.StatusCode() != http.StatusOK {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.Body(),
		}).Warn("Failed to renew token")
		return
	}

	log.Debug("Renewed token")
	r.authToken = response.String()
	r.lastRenewedAt = time.Now()
}

func (r *restClient) connect(userID string) bool {
	if r.checkConnected() {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	infoURL := r.serverURL + "/info"
	infoResponse, err := r.rest.R().Get(infoURL)
	if err != nil || infoResponse.StatusCode() != http.StatusOK {
		log.WithField("url", infoURL).WithError(err).Error("Failed to reach server")
		return false
	}
	if decodeErr := json.Unmarshal(infoResponse.Body(), &r.serverInfo); decodeErr != nil {
		log.WithField("url", infoURL).WithError(decodeErr).Error("Failed to decode server info")
		return false
	}

	url := r.serverURL + "/login/" + userID
	response, err := r.rest.R().Post(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Error("Failed to login")
		return false
	} else if response.StatusCode() != http.StatusCreated {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.Body(),
		}).Error("Failed to login")
		return false
	}

	log.WithFields(log.Fields{
		"software": r.serverInfo.Software,
		"version":  r.serverInfo.Version,
	}).Info("Successfully logged into server.")
	r.stop = false
	r.authToken = response.String()
	r.lastRenewedAt = time.Now()

	go continuousRenewal(r)

	return true
}

func (r *restClient) disconnect() {
	if !r.checkConnected() {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.watchConn != nil {
		r.watchConn.Close()
		r.watchConn = nil
	}

	url := r.serverURL + "/logout/" + r.authToken
	response, err := r.rest.R().Get(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Error("Failed to logout")
		return
	} else if response.StatusCode() != http.StatusOK {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.Body(),
		}).Error("Failed to logout")
		return
	}

	log.Info("Successfully logged out of server.")
	r.stop = true
	r.authToken = ""
}

func (r *restClient) addGame(name string) bool {
	if !r.checkConnected() {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/games/" + r.authToken
	response, err := r.rest.R().SetFormData(map[string]string{"name": name}).Put(url)
	if err != nil || response.StatusCode() != http.StatusNoContent {
		log.WithFields(log.Fields{
			"url":  url,
			"game": name,
		}).WithError(err).Error("Failed to add game")
		return false
	}

	return true
}

func (r *restClient) removeGame(name string) bool {
	if !r.checkConnected() {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/games/" + r.authToken + "/" + name
	response, err := r.rest.R().Delete(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Error("Failed to remove game")
		return false
	}
	if response.StatusCode() == http.StatusNotFound {
		return false
	}
	if response.StatusCode() != http.StatusNoContent {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.Body(),
		}).Error("Failed to remove game")
		return false
	}

	return true
}

func (r *restClient) profile() (common.ProfileResponse, bool) {
	var profile common.ProfileResponse

	if !r.checkConnected() {
		return profile, false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/profile/" + r.authToken
	response, err := r.rest.R().Get(url)
	if err != nil || response.StatusCode() != http.StatusOK {
		log.WithField("url", url).WithError(err).Error("Failed to fetch profile")
		return profile, false
	}

	if decodeErr := json.Unmarshal(response.Body(), &profile); decodeErr != nil {
		log.WithField("url", url).WithError(decodeErr).Error("Failed to decode profile response")
		return profile, false
	}

	return profile, true
}

func (r *restClient) allGames() ([]string, bool) {
	if !r.checkConnected() {
		return nil, false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/games/all/" + r.authToken
	response, err := r.rest.R().Get(url)
	if err != nil || response.StatusCode() != http.StatusOK {
		log.WithField("url", url).WithError(err).Error("Failed to fetch game list")
		return nil, false
	}

	var names []string
	if decodeErr := json.Unmarshal(response.Body(), &names); decodeErr != nil {
		log.WithField("url", url).WithError(decodeErr).Error("Failed to decode game list response")
		return nil, false
	}

	return names, true
}

func (r *restClient) setTimezone(tz string) bool {
	if !r.checkConnected() {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/timezone/" + r.authToken
	response, err := r.rest.R().SetFormData(map[string]string{"tz": tz}).Put(url)
	if err != nil || response.StatusCode() != http.StatusNoContent {
		log.WithFields(log.Fields{
			"url":      url,
			"timezone": tz,
		}).WithError(err).Error("Failed to set timezone")
		return false
	}

	return true
}

func (r *restClient) setAvailability(day, start, end string) bool {
	if !r.checkConnected() {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/availability/" + r.authToken + "/" + day
	response, err := r.rest.R().SetFormData(map[string]string{
		"start": start,
		"end":   end,
	}).Put(url)
	if err != nil || response.StatusCode() != http.StatusNoContent {
		log.WithFields(log.Fields{
			"url": url,
			"day": day,
		}).WithError(err).Error("Failed to set availability")
		return false
	}

	return true
}

func (r *restClient) addAvailability(day, start, end string) bool {
	if !r.checkConnected() {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/availability/" + r.authToken + "/" + day
	response, err := r.rest.R().SetFormData(map[string]string{
		"start": start,
		"end":   end,
	}).Post(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Error("Failed to add availability")
		return false
	}
	if response.StatusCode() == http.StatusConflict {
		log.WithField("day", day).Error("Interval overlaps existing availability")
		return false
	}
	if response.StatusCode() != http.StatusNoContent {
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.Body(),
		}).Error("Failed to add availability")
		return false
	}

	return true
}

func (r *restClient) clearAvailability(day string) bool {
	if !r.checkConnected() {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/availability/" + r.authToken + "/" + day
	response, err := r.rest.R().Delete(url)
	if err != nil || response.StatusCode() != http.StatusNoContent {
		log.WithFields(log.Fields{
			"url": url,
			"day": day,
		}).WithError(err).Error("Failed to clear availability")
		return false
	}

	return true
}

func (r *restClient) ready(gameFilter string) ([]common.ReadyPlayer, bool) {
	if !r.checkConnected() {
		return nil, false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	url := r.serverURL + "/ready/" + r.authToken
	request := r.rest.R()
	if gameFilter != "" {
		request.SetQueryParam("game", gameFilter)
	}

	response, err := request.Get(url)
	if err != nil || response.StatusCode() != http.StatusOK {
		log.WithField("url", url).WithError(err).Error("Failed to query ready players")
		return nil, false
	}

	var players []common.ReadyPlayer
	if decodeErr := json.Unmarshal(response.Body(), &players); decodeErr != nil {
		log.WithField("url", url).WithError(decodeErr).Error("Failed to decode ready players response")
		return nil, false
	}

	return players, true
}

// watch opens the server's change stream and prints every event until the
// connection drops.
func (r *restClient) watch() bool {
	if !r.checkConnected() {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.watchConn != nil {
		log.Info("Already watching for profile changes")
		return true
	}

	wsURL := strings.Replace(r.serverURL, "http", "ws", 1) + "/watch/" + r.authToken
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.WithField("url", wsURL).WithError(err).Error("Failed to open watch stream")
		return false
	}

	r.watchConn = conn
	log.Info("Watching for profile changes")

	go func() {
		for {
			_, data, readErr := conn.ReadMessage()
			if readErr != nil {
				break
			}

			var event common.ChangeEvent
			if decodeErr := json.Unmarshal(data, &event); decodeErr != nil {
				log.WithError(decodeErr).Warn("Failed to decode change event")
				continue
			}

			fmt.Printf("\n[update] user %d changed their %s\n> ", event.User, event.Change)
		}

		r.mutex.Lock()
		r.watchConn = nil
		r.mutex.Unlock()
		log.Info("Watch stream closed")
	}()

	return true
}
