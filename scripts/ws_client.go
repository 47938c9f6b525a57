// Package main runs a demo client: it previews a day's slots, watches the
// day stream over WebSocket and places one order into the first open slot.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type streamEvent struct {
	Type string         `json:"type"`
	Day  string         `json:"day"`
	Data map[string]any `json:"data"`
}

func getJSON(u string, v any) error {
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	zone := os.Getenv("ZONE")
	if zone == "" {
		zone = "Deurne"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	var days struct {
		Items []struct {
			Day string `json:"day"`
		} `json:"items"`
	}
	if err := getJSON(base+"/v1/days", &days); err != nil || len(days.Items) == 0 {
		log.Fatalf("days: %v", err)
	}
	day := days.Items[0].Day

	var slots struct {
		EarliestNewStartLabel string `json:"earliestNewStartLabel"`
		Slots                 []struct {
			StartMinutes int    `json:"startMinutes"`
			Label        string `json:"label"`
			Admissible   bool   `json:"admissible"`
		} `json:"slots"`
	}
	q := url.Values{"day": {day}, "zone": {zone}}
	if err := getJSON(base+"/v1/slots?"+q.Encode(), &slots); err != nil {
		log.Fatal(err)
	}
	start := -1
	for _, s := range slots.Slots {
		if s.Admissible {
			start = s.StartMinutes
			log.Printf("first open slot on %s for %s: %s", day, zone, s.Label)
			break
		}
	}
	if start < 0 {
		log.Fatalf("no open slot on %s for %s", day, zone)
	}

	var products struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := getJSON(base+"/v1/products", &products); err != nil || len(products.Items) == 0 {
		log.Fatalf("products: %v", err)
	}

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/days/" + day + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m streamEvent
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			b, _ := json.Marshal(m.Data)
			log.Printf("WS <- %s %s: %s", m.Type, m.Day, b)
		}
	}()

	time.Sleep(500 * time.Millisecond)
	body, _ := json.Marshal(map[string]any{
		"day":          day,
		"zone":         zone,
		"startMinutes": start,
		"items":        []map[string]any{{"productId": products.Items[0].ID, "quantity": 1}},
		"note":         "demo order",
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer customer:demo")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	var placed map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&placed)
	_ = resp.Body.Close()
	log.Printf("POST /v1/orders -> %s %v", resp.Status, placed["orderId"])

	// Wait briefly to receive the stop update
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
