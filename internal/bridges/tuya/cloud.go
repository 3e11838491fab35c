package tuya

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
)

// Cloud API paths.
const (
	pathHomes          = "/v1.0/m/life/users/homes"
	pathHomeDevices    = "/v1.0/m/life/ha/home/devices"
	pathSpecifications = "/v1.1/m/life/%s/specifications"
	pathStatus         = "/v1.0/m/life/devices/%s/status"
)

// CloudClient is an AccountClient authorized by a Token.
type CloudClient struct {
	http     *http.Client
	endpoint string
}

// NewCloudClient returns a client for the token's endpoint, or for
// fallbackEndpoint when the token carries none. Requests go through base
// (http.DefaultClient when nil) with a bearer Authorization header.
func NewCloudClient(tok *Token, fallbackEndpoint string, base *http.Client) *CloudClient {
	endpoint := tok.Endpoint
	if endpoint == "" {
		endpoint = fallbackEndpoint
	}

	ctx := context.Background()
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}

	return &CloudClient{
		http:     oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok.OAuth2())),
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// Endpoint returns the base URL requests are sent to.
func (c *CloudClient) Endpoint() string {
	return c.endpoint
}

// GetHomes lists the homes of the linked account. The result may be a
// list or an object keyed by home; objects are returned in key order,
// numeric keys compared as numbers.
func (c *CloudClient) GetHomes(ctx context.Context) ([]Home, error) {
	result, err := c.get(ctx, pathHomes, nil)
	if err != nil {
		return nil, fmt.Errorf("getting homes: %w", err)
	}

	var homes []Home
	if err := json.Unmarshal(result, &homes); err == nil {
		return homes, nil
	}

	var byKey map[string]Home
	if err := decodeResult(result, &byKey); err != nil {
		return nil, fmt.Errorf("getting homes: %w", err)
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareHomeKeys)
	for _, k := range keys {
		homes = append(homes, byKey[k])
	}
	return homes, nil
}

// compareHomeKeys orders integer keys numerically and before any other
// key, which are compared as text.
func compareHomeKeys(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Or(cmp.Compare(na, nb), strings.Compare(a, b))
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// GetDevices lists the devices of one home.
func (c *CloudClient) GetDevices(ctx context.Context, homeID string) ([]Device, error) {
	result, err := c.get(ctx, pathHomeDevices, url.Values{"homeId": {homeID}})
	if err != nil {
		return nil, fmt.Errorf("getting devices: %w", err)
	}
	var devices []Device
	if err := decodeResult(result, &devices); err != nil {
		return nil, fmt.Errorf("getting devices: %w", err)
	}
	return devices, nil
}

// GetSpecification fetches the functions and status codes of a device.
func (c *CloudClient) GetSpecification(ctx context.Context, deviceID string) (*Specification, error) {
	result, err := c.get(ctx, fmt.Sprintf(pathSpecifications, url.PathEscape(deviceID)), nil)
	if err != nil {
		return nil, fmt.Errorf("getting specification: %w", err)
	}
	var spec Specification
	if err := decodeResult(result, &spec); err != nil {
		return nil, fmt.Errorf("getting specification: %w", err)
	}
	spec.Raw = slices.Clone(result)
	return &spec, nil
}

// QueryDataPoints fetches the live state of a device. A bare list result
// is accepted as the properties list.
func (c *CloudClient) QueryDataPoints(ctx context.Context, deviceID string) (*DataPoints, error) {
	result, err := c.get(ctx, fmt.Sprintf(pathStatus, url.PathEscape(deviceID)), nil)
	if err != nil {
		return nil, fmt.Errorf("querying data points: %w", err)
	}

	var list []DataPoint
	if err := json.Unmarshal(result, &list); err == nil {
		return &DataPoints{Properties: list}, nil
	}

	var dp DataPoints
	if err := decodeResult(result, &dp); err != nil {
		return nil, fmt.Errorf("querying data points: %w", err)
	}
	return &dp, nil
}

func (c *CloudClient) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}
