// Copyright 2025 James Ross
package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/adaspeas/deliveryd/internal/joberr"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
)

func TestClassifyS3Err(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want joberr.Class
	}{
		{"missing key", awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil), joberr.ClassNotFound},
		{"missing bucket", awserr.New(s3.ErrCodeNoSuchBucket, "no such bucket", nil), joberr.ClassNotFound},
		{"head-style not found", awserr.New("NotFound", "not found", nil), joberr.ClassNotFound},
		{"access denied", awserr.New("AccessDenied", "denied", nil), joberr.ClassDenied},
		{"throttling", awserr.New("SlowDown", "reduce request rate", nil), joberr.ClassTransient},
		{"server error", awserr.New("InternalError", "we broke", nil), joberr.ClassTransient},
		{"plain network error", errors.New("connection reset by peer"), joberr.ClassTransient},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := joberr.Classify(classifyS3Err(fmt.Errorf("get object: %w", c.err)))
			if got != c.want {
				t.Fatalf("classify(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}
