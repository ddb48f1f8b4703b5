package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

type seededRoom struct {
	Code      string    `json:"code"`
	Content   string    `json:"content"`
	Revision  int64     `json:"revision"`
	ExpiresAt time.Time `json:"expires_at"`
}

type seededAttachment struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
}

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{base: strings.TrimRight(base, "/"), http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *client) createRoom(ctx context.Context, ttlHours int) (*seededRoom, error) {
	body, _ := json.Marshal(map[string]int{"ttl_hours": ttlHours})
	var out seededRoom
	if err := c.do(ctx, http.MethodPost, "/rooms", "application/json", bytes.NewReader(body), http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) updateContent(ctx context.Context, code, content string) (*seededRoom, error) {
	body, _ := json.Marshal(map[string]string{"content": content})
	var out seededRoom
	if err := c.do(ctx, http.MethodPut, "/rooms/"+code+"/content", "application/json", bytes.NewReader(body), http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) upload(ctx context.Context, code, fileName string, data []byte) (*seededAttachment, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	var out seededAttachment
	if err := c.do(ctx, http.MethodPost, "/rooms/"+code+"/attachments", w.FormDataContentType(), &b, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) do(ctx context.Context, method, path, contentType string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
