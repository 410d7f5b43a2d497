package steam

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"giveaway-fulfillment/pkg/errutil"

	"go.uber.org/zap"
)

// ConfirmationKey signs a mobile confirmation request: base64(HMAC-SHA1(secret, time||tag)).
// Tags longer than 32 bytes are truncated.
func ConfirmationKey(identitySecret string, t int64, tag string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(identitySecret)
	if err != nil {
		return "", errutil.ValidationFailed("identity secret is not valid base64", err)
	}

	if len(tag) > 32 {
		tag = tag[:32]
	}
	buf := make([]byte, 8, 8+len(tag))
	binary.BigEndian.PutUint64(buf, uint64(t))
	buf = append(buf, tag...)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// DeviceID derives the android device id Steam expects for confirmations when none
// is configured.
func DeviceID(steamID string) string {
	sum := sha1.Sum([]byte(steamID))
	h := hex.EncodeToString(sum[:])
	return "android:" + h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:32]
}

type confirmation struct {
	ID        string `json:"id"`
	Nonce     string `json:"nonce"`
	CreatorID string `json:"creator_id"`
	Type      int    `json:"type"`
}

type confirmationList struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Conf    []confirmation `json:"conf"`
}

type confirmationOp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *Client) confParams(tag string) (map[string]string, error) {
	t := c.now().Unix()
	key, err := ConfirmationKey(c.identitySecret, t, tag)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"p":   c.deviceID,
		"a":   c.steamID,
		"k":   key,
		"t":   strconv.FormatInt(t, 10),
		"m":   "react",
		"tag": tag,
	}, nil
}

// ConfirmOffer accepts the pending mobile confirmation created for offerID. It
// returns false when no identity secret is configured or no matching confirmation
// exists.
func (c *Client) ConfirmOffer(ctx context.Context, offerID string) (bool, error) {
	if c.identitySecret == "" {
		return false, nil
	}

	params, err := c.confParams("list")
	if err != nil {
		return false, err
	}
	var list confirmationList
	resp, err := c.community.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&list).
		Get("/mobileconf/getlist")
	if err != nil || resp.IsError() {
		return false, httpError("confirmation list", resp, err)
	}
	if !list.Success {
		return false, errutil.BadGateway("Steam confirmation list failed: "+list.Message, nil)
	}

	var match *confirmation
	for i := range list.Conf {
		if list.Conf[i].CreatorID == offerID {
			match = &list.Conf[i]
			break
		}
	}
	if match == nil {
		logRequest("no confirmation for offer", zap.String("offer_id", offerID), zap.Int("pending", len(list.Conf)))
		return false, nil
	}

	params, err = c.confParams("allow")
	if err != nil {
		return false, err
	}
	params["op"] = "allow"
	params["cid"] = match.ID
	params["ck"] = match.Nonce

	var op confirmationOp
	resp, err = c.community.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&op).
		Get("/mobileconf/ajaxop")
	if err != nil || resp.IsError() {
		return false, httpError("confirmation accept", resp, err)
	}
	if !op.Success {
		return false, errutil.BadGateway("Steam confirmation rejected: "+op.Message, nil)
	}
	return true, nil
}
