package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"giveaway-fulfillment/pkg/errutil"

	"go.uber.org/zap"
)

// OfferState is the trade offer state code reported by the Steam Web API.
type OfferState int

const (
	OfferStateInvalid                  OfferState = 1
	OfferStateActive                   OfferState = 2
	OfferStateAccepted                 OfferState = 3
	OfferStateCountered                OfferState = 4
	OfferStateExpired                  OfferState = 5
	OfferStateCanceled                 OfferState = 6
	OfferStateDeclined                 OfferState = 7
	OfferStateInvalidItems             OfferState = 8
	OfferStateCreatedNeedsConfirmation OfferState = 9
	OfferStateCanceledBySecondFactor   OfferState = 10
	OfferStateInEscrow                 OfferState = 11
)

var offerStateNames = map[OfferState]string{
	OfferStateInvalid:                  "Invalid",
	OfferStateActive:                   "Active",
	OfferStateAccepted:                 "Accepted",
	OfferStateCountered:                "Countered",
	OfferStateExpired:                  "Expired",
	OfferStateCanceled:                 "Canceled",
	OfferStateDeclined:                 "Declined",
	OfferStateInvalidItems:             "InvalidItems",
	OfferStateCreatedNeedsConfirmation: "CreatedNeedsConfirmation",
	OfferStateCanceledBySecondFactor:   "CanceledBySecondFactor",
	OfferStateInEscrow:                 "InEscrow",
}

func (s OfferState) String() string {
	if name, ok := offerStateNames[s]; ok {
		return name
	}
	return strconv.Itoa(int(s))
}

// Outcome is what an offer state means for the claim that sent it.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeFailed
)

func (s OfferState) Outcome() Outcome {
	switch s {
	case OfferStateAccepted:
		return OutcomeSuccess
	case OfferStateDeclined, OfferStateCanceled, OfferStateExpired, OfferStateInvalidItems, OfferStateCanceledBySecondFactor:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

const (
	SendStatusPending = "pending"
	SendStatusSent    = "sent"
)

// Offer is a one-sided offer: the custodial account gives Items and asks for nothing.
type Offer struct {
	Partner TradeURL
	Message string
	Items   []Item
}

type SendResult struct {
	OfferID string
	// Status is SendStatusPending when the offer waits for mobile or email confirmation.
	Status string
}

type offerAsset struct {
	AppID     int    `json:"appid"`
	ContextID string `json:"contextid"`
	Amount    int    `json:"amount"`
	AssetID   string `json:"assetid"`
}

type offerSide struct {
	Assets   []offerAsset `json:"assets"`
	Currency []any        `json:"currency"`
	Ready    bool         `json:"ready"`
}

type offerPayload struct {
	NewVersion bool      `json:"newversion"`
	Version    int       `json:"version"`
	Me         offerSide `json:"me"`
	Them       offerSide `json:"them"`
}

type sendResponse struct {
	TradeOfferID            string `json:"tradeofferid"`
	NeedsMobileConfirmation bool   `json:"needs_mobile_confirmation"`
	NeedsEmailConfirmation  bool   `json:"needs_email_confirmation"`
	StrError                string `json:"strError"`
}

// SendOffer submits the offer through the community trade endpoint.
func (c *Client) SendOffer(ctx context.Context, offer Offer) (SendResult, error) {
	if c.sessionID == "" {
		return SendResult{}, errutil.Unauthorized("Steam session not configured", nil)
	}
	if len(offer.Items) == 0 {
		return SendResult{}, errutil.ValidationFailed("Trade offer has no items", nil)
	}

	payload := offerPayload{
		NewVersion: true,
		Version:    len(offer.Items) + 1,
		Me:         offerSide{Assets: make([]offerAsset, 0, len(offer.Items)), Currency: []any{}},
		Them:       offerSide{Assets: []offerAsset{}, Currency: []any{}},
	}
	for _, it := range offer.Items {
		payload.Me.Assets = append(payload.Me.Assets, offerAsset{
			AppID:     it.AppID,
			ContextID: it.ContextID,
			Amount:    1,
			AssetID:   it.AssetID,
		})
	}
	offerJSON, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, errutil.Internal("encode trade offer", err)
	}
	params, err := json.Marshal(map[string]string{"trade_offer_access_token": offer.Partner.Token})
	if err != nil {
		return SendResult{}, errutil.Internal("encode trade offer params", err)
	}

	referer := fmt.Sprintf("%s/tradeoffer/new/?partner=%d&token=%s",
		c.communityURL, offer.Partner.AccountID, offer.Partner.Token)

	var out sendResponse
	resp, err := c.community.R().
		SetContext(ctx).
		SetHeader("Referer", referer).
		SetFormData(map[string]string{
			"sessionid":                 c.sessionID,
			"serverid":                  "1",
			"partner":                   offer.Partner.SteamID64,
			"tradeoffermessage":         offer.Message,
			"json_tradeoffer":           string(offerJSON),
			"captcha":                   "",
			"trade_offer_create_params": string(params),
		}).
		SetResult(&out).
		SetError(&out).
		Post("/tradeoffer/new/send")
	if err != nil {
		return SendResult{}, errutil.BadGateway("Trade offer send failed", err)
	}
	if out.StrError != "" {
		return SendResult{}, errutil.BadGateway(out.StrError, nil)
	}
	if resp.IsError() {
		return SendResult{}, httpError("trade offer send", resp, nil)
	}

	status := SendStatusSent
	if out.NeedsMobileConfirmation || out.NeedsEmailConfirmation {
		status = SendStatusPending
	}

	logRequest("offer sent", zap.String("offer_id", out.TradeOfferID), zap.String("status", status))
	return SendResult{OfferID: strings.TrimSpace(out.TradeOfferID), Status: status}, nil
}

type getOfferResponse struct {
	Response struct {
		Offer *struct {
			TradeOfferID    string `json:"tradeofferid"`
			TradeOfferState int    `json:"trade_offer_state"`
		} `json:"offer"`
	} `json:"response"`
}

// GetOffer reads the current state of an offer sent by the custodial account.
func (c *Client) GetOffer(ctx context.Context, offerID string) (OfferState, error) {
	if c.apiKey == "" {
		return 0, errutil.Unauthorized("Steam Web API key not configured", nil)
	}

	var out getOfferResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":          c.apiKey,
			"tradeofferid": offerID,
			"language":     c.language,
		}).
		SetResult(&out).
		Get("/IEconService/GetTradeOffer/v1/")
	if err != nil || resp.IsError() {
		return 0, httpError("trade offer lookup", resp, err)
	}
	if resp.StatusCode() != http.StatusOK || out.Response.Offer == nil {
		return 0, errutil.NotFound("Trade offer "+offerID+" not found", nil)
	}
	return OfferState(out.Response.Offer.TradeOfferState), nil
}
