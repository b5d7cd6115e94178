package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"objrelay/internal/objstore"
	"objrelay/internal/relay"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

func main() {
	var (
		endpoint        = flag.String("endpoint", strings.TrimSpace(os.Getenv("RELAY_OSS_ENDPOINT")), "OSS endpoint, e.g. https://oss-eu-central-1.aliyuncs.com")
		accessKeyID     = flag.String("access-key-id", strings.TrimSpace(os.Getenv("RELAY_OSS_ACCESS_KEY_ID")), "OSS access key id")
		accessKeySecret = flag.String("access-key-secret", strings.TrimSpace(os.Getenv("RELAY_OSS_ACCESS_KEY_SECRET")), "OSS access key secret")
		bucketName      = flag.String("bucket", strings.TrimSpace(os.Getenv("RELAY_OSS_BUCKET")), "OSS bucket name")
		basePrefix      = flag.String("base-prefix", strings.Trim(strings.TrimSpace(os.Getenv("RELAY_OSS_BASE_PREFIX")), "/"), "Base prefix for all objects (optional)")

		requestDays = flag.Int("request-days", 2, "Retention days for unconsumed session requests (request-)")
		resultDays  = flag.Int("result-days", 7, "Retention days for undrained results (client.msg.)")
		apply       = flag.Bool("apply-lifecycle", false, "Apply/merge lifecycle rules into bucket")

		keygen = flag.Bool("keygen", false, "Print a new ed25519 keypair for the local provider")

		inspect    = flag.String("inspect", "", "Capability URL to decode")
		gatewayURL = flag.String("gateway-url", strings.TrimSpace(os.Getenv("RELAY_LOCAL_GATEWAY_URL")), "Local gateway URL the capability was issued for")
		verifyKey  = flag.String("verify-key", strings.TrimSpace(os.Getenv("RELAY_LOCAL_VERIFY_KEY")), "Public key to verify -inspect against (optional)")
	)
	flag.Parse()

	switch {
	case *keygen:
		pub, priv, err := objstore.GenerateSigningKey()
		if err != nil {
			log.Fatalf("keygen: %v", err)
		}
		fmt.Printf("RELAY_LOCAL_SIGNING_KEY=%s\n", objstore.EncodeKey(priv))
		fmt.Printf("RELAY_LOCAL_VERIFY_KEY=%s\n", objstore.EncodeKey(pub))
	case *inspect != "":
		if err := inspectCapability(os.Stdout, *inspect, *gatewayURL, *verifyKey); err != nil {
			fmt.Fprintln(os.Stderr, "inspect failed:", err)
			os.Exit(1)
		}
	case *apply:
		applyLifecycle(*endpoint, *accessKeyID, *accessKeySecret, *bucketName, *basePrefix, *requestDays, *resultDays)
	default:
		log.Fatal("no action specified (use -apply-lifecycle, -keygen or -inspect)")
	}
}

func applyLifecycle(endpoint, accessKeyID, accessKeySecret, bucketName, basePrefix string, requestDays, resultDays int) {
	if endpoint == "" || accessKeyID == "" || accessKeySecret == "" || bucketName == "" {
		log.Fatal("missing required OSS config (endpoint/access-key-id/access-key-secret/bucket)")
	}
	if requestDays < 1 || requestDays > 3650 {
		log.Fatal("invalid -request-days")
	}
	if resultDays < 1 || resultDays > 3650 {
		log.Fatal("invalid -result-days")
	}

	client, err := oss.New(endpoint, accessKeyID, accessKeySecret)
	if err != nil {
		log.Fatalf("oss client: %v", err)
	}

	// Fetch existing lifecycle config (may not exist).
	existing, err := client.GetBucketLifecycle(bucketName)
	if err != nil {
		var srvErr oss.ServiceError
		if errors.As(err, &srvErr) && srvErr.StatusCode == 404 &&
			(srvErr.Code == "NoSuchLifecycle" || srvErr.Code == "NoSuchLifecycleConfiguration") {
			log.Printf("no existing lifecycle rules (bucket=%s)", bucketName)
			existing = oss.GetBucketLifecycleResult{}
		} else {
			log.Fatalf("get lifecycle: %v", err)
		}
	}

	ruleRequestsID := "objrelay_requests_expire"
	ruleResultsID := "objrelay_results_expire"

	newRules := make([]oss.LifecycleRule, 0, len(existing.Rules)+2)
	for _, r := range existing.Rules {
		if r.ID == ruleRequestsID || r.ID == ruleResultsID {
			continue
		}
		newRules = append(newRules, r)
	}

	requestsPrefix := objstore.JoinKey(basePrefix, relay.RequestPrefix)
	resultsPrefix := objstore.JoinKey(basePrefix, relay.OutboundPrefix)

	newRules = append(newRules,
		oss.LifecycleRule{
			ID:     ruleRequestsID,
			Prefix: requestsPrefix,
			Status: "Enabled",
			Expiration: &oss.LifecycleExpiration{
				Days: requestDays,
			},
		},
		oss.LifecycleRule{
			ID:     ruleResultsID,
			Prefix: resultsPrefix,
			Status: "Enabled",
			Expiration: &oss.LifecycleExpiration{
				Days: resultDays,
			},
		},
	)

	if err := client.SetBucketLifecycle(bucketName, newRules); err != nil {
		log.Fatalf("set lifecycle: %v", err)
	}

	log.Printf("lifecycle rules applied (requests=%s days=%d, results=%s days=%d)", requestsPrefix, requestDays, resultsPrefix, resultDays)
}
