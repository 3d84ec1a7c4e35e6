package teslemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, "tok")
	c.SetHTTPClient(ts.Client())
	return c
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"invalid_token"}`, ErrInvalidToken},
		{"payment required", http.StatusPaymentRequired, `{}`, ErrSubscriptionRequired},
		{"forbidden", http.StatusForbidden, `{}`, ErrForbidden},
		{"vehicle offline", http.StatusRequestTimeout, `{"error":"vehicle unavailable"}`, ErrVehicleOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Vehicle("VIN1").VehicleData(context.Background())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClientAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal","error_description":"upstream exploded"}`))
	})

	_, err := c.EnergySite(42).LiveStatus(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}

func TestClientMalformedResponse(t *testing.T) {
	t.Run("not json", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		})
		_, err := c.EnergySite(1).SiteInfo(context.Background())
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("missing response", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"foo":1}`))
		})
		_, err := c.EnergySite(1).SiteInfo(context.Background())
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("response not an object", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"response":[1,2]}`))
		})
		_, err := c.Vehicle("VIN1").VehicleData(context.Background())
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestClientVehicleData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/1/vehicles/VIN1/vehicle_data", r.URL.Path)
		assert.Equal(t, "charge_state;vehicle_state", r.URL.Query().Get("endpoints"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": map[string]interface{}{
				"state":        "online",
				"charge_state": map[string]interface{}{"battery_level": 80},
			},
		})
	})

	data, err := c.Vehicle("VIN1").VehicleData(context.Background(), EndpointChargeState, EndpointVehicleState)
	require.NoError(t, err)
	assert.Equal(t, "online", data["state"])
	assert.Equal(t, map[string]interface{}{"battery_level": float64(80)}, data["charge_state"])
}

func TestClientSetToken(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{"uid":"abc","scopes":["vehicle_device_data"]}`))
	})

	c.SetToken("  fresh  ")
	meta, err := c.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", got)
	assert.Equal(t, "abc", meta.UID)
	assert.True(t, c.HasToken())
}

func TestClientWakeUp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/1/vehicles/VIN1/wake_up", r.URL.Path)
		w.Write([]byte(`{"response":{"state":"asleep"}}`))
	})

	state, err := c.Vehicle("VIN1").WakeUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAsleep, state)
}

func TestClientCommand(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/1/vehicles/VIN1/command/actuate_trunk", r.URL.Path)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "front", body["which_trunk"])
			w.Write([]byte(`{"response":{"result":true,"reason":""}}`))
		})
		assert.NoError(t, c.Vehicle("VIN1").ActuateTrunk(context.Background(), "front"))
	})

	t.Run("rejected", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"response":{"result":false,"reason":"already_closed"}}`))
		})
		err := c.Vehicle("VIN1").ChargePortDoorClose(context.Background())
		var cmdErr *CommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, "already_closed", cmdErr.Reason)
	})
}

func TestClientProducts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":[
			{"vin":"5YJSA1E26HF000001","display_name":"Red","state":"asleep"},
			{"energy_site_id":12345,"site_name":"Home"}
		]}`))
	})

	products, err := c.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.True(t, products[0].IsVehicle())
	assert.Equal(t, "Red", products[0].DisplayName)
	assert.True(t, products[1].IsEnergySite())
	assert.Equal(t, int64(12345), products[1].EnergySiteID)
	assert.Equal(t, "Home", products[1].Raw["site_name"])
}

func TestClientValidateToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer candidate" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"uid":"u1"}`))
	})

	meta, err := c.ValidateToken(context.Background(), "candidate")
	require.NoError(t, err)
	assert.Equal(t, "u1", meta.UID)

	// 当前 token 未被替换
	_, err = c.Metadata(context.Background())
	assert.ErrorIs(t, err, ErrInvalidToken)
}
