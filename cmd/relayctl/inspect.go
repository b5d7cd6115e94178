package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"objrelay/internal/objstore"
)

// inspectCapability prints what a locally signed capability URL grants and,
// given the gateway's public key, whether the gateway would honor it.
func inspectCapability(w io.Writer, raw, gatewayURL, verifyKey string) error {
	base := ""
	if gatewayURL = strings.TrimRight(strings.TrimSpace(gatewayURL), "/"); gatewayURL != "" {
		base = gatewayURL + "/o"
	}
	c, err := objstore.ParseCapability(raw, base)
	if err != nil {
		return err
	}

	expires := time.Unix(c.Expires, 0).UTC()
	fmt.Fprintf(w, "key:     %s\n", c.Key)
	fmt.Fprintf(w, "method:  %s\n", c.Method)
	fmt.Fprintf(w, "expires: %s (in %s)\n", expires.Format(time.RFC3339), time.Until(expires).Round(time.Second))

	if strings.TrimSpace(verifyKey) == "" {
		return nil
	}
	pub, err := objstore.ParsePublicKey(verifyKey)
	if err != nil {
		return err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if err := (objstore.Verifier{Key: pub}).Verify(c.Key, c.Method, u.Query()); err != nil {
		return err
	}
	fmt.Fprintln(w, "signature: OK")
	return nil
}
