package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type aliyunStore struct {
	bucket     *oss.Bucket
	basePrefix string
}

func newAliyunStore(cfg Config) (Store, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, err
	}
	return aliyunStore{bucket: bucket, basePrefix: cfg.BasePrefix}, nil
}

func isNotFound(err error) bool {
	var srvErr oss.ServiceError
	if errors.As(err, &srvErr) {
		return srvErr.StatusCode == http.StatusNotFound
	}
	return false
}

func (s aliyunStore) Put(ctx context.Context, key string, body []byte, public bool) error {
	_ = ctx
	fullKey := JoinKey(s.basePrefix, key)
	opts := []oss.Option{oss.ContentType("text/plain; charset=utf-8")}
	if public {
		opts = append(opts, oss.ObjectACL(oss.ACLPublicRead))
	} else {
		opts = append(opts, oss.ObjectACL(oss.ACLPrivate))
	}
	return s.bucket.PutObject(fullKey, bytes.NewReader(body), opts...)
}

func (s aliyunStore) Get(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	fullKey := JoinKey(s.basePrefix, key)
	rc, err := s.bucket.GetObject(fullKey)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s aliyunStore) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := JoinKey(s.basePrefix, strings.TrimLeft(prefix, "/"))
	var out []string
	marker := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.bucket.ListObjects(oss.Prefix(fullPrefix), oss.Marker(marker), oss.MaxKeys(1000))
		if err != nil {
			return nil, err
		}
		for _, o := range res.Objects {
			out = append(out, trimBase(s.basePrefix, o.Key))
		}
		if !res.IsTruncated || res.NextMarker == "" {
			return out, nil
		}
		marker = res.NextMarker
	}
}

func (s aliyunStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	return s.bucket.DeleteObject(JoinKey(s.basePrefix, key))
}

// Sign happens locally; no network call is made.
func (s aliyunStore) Sign(key, method string, ttl time.Duration) (string, error) {
	var m oss.HTTPMethod
	switch strings.ToUpper(method) {
	case MethodGet:
		m = oss.HTTPGet
	case MethodPut:
		m = oss.HTTPPut
	case MethodDelete:
		m = oss.HTTPDelete
	default:
		return "", fmt.Errorf("unsupported capability method %q", method)
	}
	return s.bucket.SignURL(JoinKey(s.basePrefix, key), m, int64(ttl/time.Second))
}
