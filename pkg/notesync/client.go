// Package notesync provides primitives to interact with the notes HTTP API.
package notesync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"
)

// Note defines model for Note.
type Note struct {
	Content   string    `json:"content"`
	Id        string    `json:"id"`
	Synced    bool      `json:"synced"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteInput defines model for NoteInput.
type NoteInput struct {
	Content   string    `json:"content"`
	Id        *string   `json:"id,omitempty"`
	Synced    bool      `json:"synced"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostNotesJSONRequestBody defines body for PostNotes for application/json ContentType.
type PostNotesJSONRequestBody = NoteInput

// PutNotesIdJSONRequestBody defines body for PutNotesId for application/json ContentType.
type PutNotesIdJSONRequestBody = NoteInput

// RequestEditorFn  is the function signature for the RequestEditor callback function
type RequestEditorFn func(ctx context.Context, req *http.Request) error

// Doer performs HTTP requests.
//
// The standard http.Client implements this interface.
type HttpRequestDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client which conforms to the OpenAPI3 specification for this service.
type Client struct {
	// The endpoint of the server conforming to this interface, with scheme,
	// http://localhost:8080/api for example. All the paths in the API are
	// appended to it.
	Server string

	// Doer for performing requests, typically a *http.Client with any
	// customized settings, such as timeouts.
	Client HttpRequestDoer

	// A list of callbacks for modifying requests which are generated before sending over
	// the network.
	RequestEditors []RequestEditorFn
}

// ClientOption allows setting custom parameters during construction
type ClientOption func(*Client) error

// Creates a new Client, with reasonable defaults
func NewClient(server string, opts ...ClientOption) (*Client, error) {
	client := Client{
		Server: server,
	}
	for _, o := range opts {
		if err := o(&client); err != nil {
			return nil, err
		}
	}
	// ensure the server URL always has a trailing slash
	if !strings.HasSuffix(client.Server, "/") {
		client.Server += "/"
	}
	if client.Client == nil {
		client.Client = &http.Client{}
	}
	return &client, nil
}

// WithHTTPClient allows overriding the default Doer, which is
// automatically created using http.Client. This is useful for tests.
func WithHTTPClient(doer HttpRequestDoer) ClientOption {
	return func(c *Client) error {
		c.Client = doer
		return nil
	}
}

// WithRequestEditorFn allows setting up a callback function, which will be
// called right before sending the request. This can be used to mutate the request.
func WithRequestEditorFn(fn RequestEditorFn) ClientOption {
	return func(c *Client) error {
		c.RequestEditors = append(c.RequestEditors, fn)
		return nil
	}
}

// WithBaseURL overrides the baseURL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) error {
		newBaseURL, err := url.Parse(baseURL)
		if err != nil {
			return err
		}
		c.Server = newBaseURL.String()
		return nil
	}
}

// The interface specification for the client above.
type ClientInterface interface {
	// GetNotes request
	GetNotes(ctx context.Context, reqEditors ...RequestEditorFn) (*http.Response, error)

	// PostNotesWithBody request with any body
	PostNotesWithBody(ctx context.Context, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error)

	PostNotes(ctx context.Context, body PostNotesJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error)

	// PutNotesIdWithBody request with any body
	PutNotesIdWithBody(ctx context.Context, id string, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error)

	PutNotesId(ctx context.Context, id string, body PutNotesIdJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error)

	// DeleteNotesId request
	DeleteNotesId(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*http.Response, error)
}

func (c *Client) GetNotes(ctx context.Context, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewGetNotesRequest(c.Server)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

func (c *Client) PostNotesWithBody(ctx context.Context, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPostNotesRequestWithBody(c.Server, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

func (c *Client) PostNotes(ctx context.Context, body PostNotesJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPostNotesRequest(c.Server, body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

func (c *Client) PutNotesIdWithBody(ctx context.Context, id string, contentType string, body io.Reader, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPutNotesIdRequestWithBody(c.Server, id, contentType, body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

func (c *Client) PutNotesId(ctx context.Context, id string, body PutNotesIdJSONRequestBody, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewPutNotesIdRequest(c.Server, id, body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

func (c *Client) DeleteNotesId(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*http.Response, error) {
	req, err := NewDeleteNotesIdRequest(c.Server, id)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req, reqEditors)
}

func (c *Client) do(ctx context.Context, req *http.Request, reqEditors []RequestEditorFn) (*http.Response, error) {
	req = req.WithContext(ctx)
	if err := c.applyEditors(ctx, req, reqEditors); err != nil {
		return nil, err
	}
	return c.Client.Do(req)
}

func (c *Client) applyEditors(ctx context.Context, req *http.Request, additionalEditors []RequestEditorFn) error {
	for _, r := range c.RequestEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	for _, r := range additionalEditors {
		if err := r(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// NewGetNotesRequest generates requests for GetNotes
func NewGetNotesRequest(server string) (*http.Request, error) {
	queryURL, err := operationURL(server, "/notes")
	if err != nil {
		return nil, err
	}
	return http.NewRequest("GET", queryURL.String(), nil)
}

// NewPostNotesRequest calls the generic PostNotes builder with application/json body
func NewPostNotesRequest(server string, body PostNotesJSONRequestBody) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return NewPostNotesRequestWithBody(server, "application/json", bytes.NewReader(buf))
}

// NewPostNotesRequestWithBody generates requests for PostNotes with any type of body
func NewPostNotesRequestWithBody(server string, contentType string, body io.Reader) (*http.Request, error) {
	queryURL, err := operationURL(server, "/notes")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", queryURL.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Add("Content-Type", contentType)

	return req, nil
}

// NewPutNotesIdRequest calls the generic PutNotesId builder with application/json body
func NewPutNotesIdRequest(server string, id string, body PutNotesIdJSONRequestBody) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return NewPutNotesIdRequestWithBody(server, id, "application/json", bytes.NewReader(buf))
}

// NewPutNotesIdRequestWithBody generates requests for PutNotesId with any type of body
func NewPutNotesIdRequestWithBody(server string, id string, contentType string, body io.Reader) (*http.Request, error) {
	var err error

	var pathParam0 string

	pathParam0, err = runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return nil, err
	}

	queryURL, err := operationURL(server, fmt.Sprintf("/notes/%s", pathParam0))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("PUT", queryURL.String(), body)
	if err != nil {
		return nil, err
	}

	req.Header.Add("Content-Type", contentType)

	return req, nil
}

// NewDeleteNotesIdRequest generates requests for DeleteNotesId
func NewDeleteNotesIdRequest(server string, id string) (*http.Request, error) {
	var err error

	var pathParam0 string

	pathParam0, err = runtime.StyleParamWithLocation("simple", false, "id", runtime.ParamLocationPath, id)
	if err != nil {
		return nil, err
	}

	queryURL, err := operationURL(server, fmt.Sprintf("/notes/%s", pathParam0))
	if err != nil {
		return nil, err
	}

	return http.NewRequest("DELETE", queryURL.String(), nil)
}

func operationURL(server, operationPath string) (*url.URL, error) {
	serverURL, err := url.Parse(server)
	if err != nil {
		return nil, err
	}
	if operationPath[0] == '/' {
		operationPath = "." + operationPath
	}
	return serverURL.Parse(operationPath)
}

// ClientWithResponses builds on ClientInterface to offer response payloads
type ClientWithResponses struct {
	ClientInterface
}

// NewClientWithResponses creates a new ClientWithResponses, which wraps
// Client with return type handling
func NewClientWithResponses(server string, opts ...ClientOption) (*ClientWithResponses, error) {
	client, err := NewClient(server, opts...)
	if err != nil {
		return nil, err
	}
	return &ClientWithResponses{client}, nil
}

// ClientWithResponsesInterface is the interface specification for the client with responses above.
type ClientWithResponsesInterface interface {
	// GetNotesWithResponse request
	GetNotesWithResponse(ctx context.Context, reqEditors ...RequestEditorFn) (*GetNotesResponse, error)

	// PostNotesWithResponse request
	PostNotesWithResponse(ctx context.Context, body PostNotesJSONRequestBody, reqEditors ...RequestEditorFn) (*PostNotesResponse, error)

	// PutNotesIdWithResponse request
	PutNotesIdWithResponse(ctx context.Context, id string, body PutNotesIdJSONRequestBody, reqEditors ...RequestEditorFn) (*PutNotesIdResponse, error)

	// DeleteNotesIdWithResponse request
	DeleteNotesIdWithResponse(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*DeleteNotesIdResponse, error)
}

type GetNotesResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *[]Note
}

// Status returns HTTPResponse.Status
func (r GetNotesResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r GetNotesResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

type PostNotesResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON201      *Note
}

// Status returns HTTPResponse.Status
func (r PostNotesResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r PostNotesResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

type PutNotesIdResponse struct {
	Body         []byte
	HTTPResponse *http.Response
	JSON200      *Note
}

// Status returns HTTPResponse.Status
func (r PutNotesIdResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r PutNotesIdResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

type DeleteNotesIdResponse struct {
	Body         []byte
	HTTPResponse *http.Response
}

// Status returns HTTPResponse.Status
func (r DeleteNotesIdResponse) Status() string {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.Status
	}
	return http.StatusText(0)
}

// StatusCode returns HTTPResponse.StatusCode
func (r DeleteNotesIdResponse) StatusCode() int {
	if r.HTTPResponse != nil {
		return r.HTTPResponse.StatusCode
	}
	return 0
}

// GetNotesWithResponse request returning *GetNotesResponse
func (c *ClientWithResponses) GetNotesWithResponse(ctx context.Context, reqEditors ...RequestEditorFn) (*GetNotesResponse, error) {
	rsp, err := c.GetNotes(ctx, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseGetNotesResponse(rsp)
}

// PostNotesWithResponse request returning *PostNotesResponse
func (c *ClientWithResponses) PostNotesWithResponse(ctx context.Context, body PostNotesJSONRequestBody, reqEditors ...RequestEditorFn) (*PostNotesResponse, error) {
	rsp, err := c.PostNotes(ctx, body, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParsePostNotesResponse(rsp)
}

// PutNotesIdWithResponse request returning *PutNotesIdResponse
func (c *ClientWithResponses) PutNotesIdWithResponse(ctx context.Context, id string, body PutNotesIdJSONRequestBody, reqEditors ...RequestEditorFn) (*PutNotesIdResponse, error) {
	rsp, err := c.PutNotesId(ctx, id, body, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParsePutNotesIdResponse(rsp)
}

// DeleteNotesIdWithResponse request returning *DeleteNotesIdResponse
func (c *ClientWithResponses) DeleteNotesIdWithResponse(ctx context.Context, id string, reqEditors ...RequestEditorFn) (*DeleteNotesIdResponse, error) {
	rsp, err := c.DeleteNotesId(ctx, id, reqEditors...)
	if err != nil {
		return nil, err
	}
	return ParseDeleteNotesIdResponse(rsp)
}

// ParseGetNotesResponse parses an HTTP response from a GetNotesWithResponse call
func ParseGetNotesResponse(rsp *http.Response) (*GetNotesResponse, error) {
	bodyBytes, err := io.ReadAll(rsp.Body)
	defer func() { _ = rsp.Body.Close() }()
	if err != nil {
		return nil, err
	}

	response := &GetNotesResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}

	switch {
	case strings.Contains(rsp.Header.Get("Content-Type"), "json") && rsp.StatusCode == 200:
		var dest []Note
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest

	}

	return response, nil
}

// ParsePostNotesResponse parses an HTTP response from a PostNotesWithResponse call
func ParsePostNotesResponse(rsp *http.Response) (*PostNotesResponse, error) {
	bodyBytes, err := io.ReadAll(rsp.Body)
	defer func() { _ = rsp.Body.Close() }()
	if err != nil {
		return nil, err
	}

	response := &PostNotesResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}

	switch {
	case strings.Contains(rsp.Header.Get("Content-Type"), "json") && rsp.StatusCode/100 == 2:
		var dest Note
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSON201 = &dest

	}

	return response, nil
}

// ParsePutNotesIdResponse parses an HTTP response from a PutNotesIdWithResponse call
func ParsePutNotesIdResponse(rsp *http.Response) (*PutNotesIdResponse, error) {
	bodyBytes, err := io.ReadAll(rsp.Body)
	defer func() { _ = rsp.Body.Close() }()
	if err != nil {
		return nil, err
	}

	response := &PutNotesIdResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}

	switch {
	case strings.Contains(rsp.Header.Get("Content-Type"), "json") && rsp.StatusCode == 200 && len(bodyBytes) > 0:
		var dest Note
		if err := json.Unmarshal(bodyBytes, &dest); err != nil {
			return nil, err
		}
		response.JSON200 = &dest

	}

	return response, nil
}

// ParseDeleteNotesIdResponse parses an HTTP response from a DeleteNotesIdWithResponse call
func ParseDeleteNotesIdResponse(rsp *http.Response) (*DeleteNotesIdResponse, error) {
	bodyBytes, err := io.ReadAll(rsp.Body)
	defer func() { _ = rsp.Body.Close() }()
	if err != nil {
		return nil, err
	}

	response := &DeleteNotesIdResponse{
		Body:         bodyBytes,
		HTTPResponse: rsp,
	}

	return response, nil
}
