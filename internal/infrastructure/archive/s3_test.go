package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"FeedIngestor/internal/clock"
	"FeedIngestor/internal/domain"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestWriteErrorsPutsJSONLinesObject(t *testing.T) {
	t.Parallel()

	fake := &fakePutter{}
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	arch := newS3Archive(fake, "ingest-archive", "feedingestor", clock.NewFake(at))

	records := []domain.ErrorRecord{
		{ID: "1", Identifier: "world", ErrorType: domain.KindTimeout, Message: "timeout", Timestamp: at},
		{ID: "2", Identifier: "world", ErrorType: domain.KindHTTP, Message: "404", Timestamp: at},
	}
	if err := arch.WriteErrors(context.Background(), records); err != nil {
		t.Fatalf("WriteErrors returned error: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected one object, got %d", len(fake.inputs))
	}

	in := fake.inputs[0]
	key := aws.ToString(in.Key)
	if aws.ToString(in.Bucket) != "ingest-archive" || !strings.HasPrefix(key, "feedingestor/errors/2026/03/02/") || !strings.HasSuffix(key, ".jsonl") {
		t.Fatalf("unexpected object location %s/%s", aws.ToString(in.Bucket), key)
	}

	scanner := bufio.NewScanner(bytes.NewReader(fake.bodies[0]))
	var lines int
	for scanner.Scan() {
		var rec domain.ErrorRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("line %d is not a record: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}
}

func TestWriteMetricsSkipsEmptyAndWrapsErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("access denied")
	fake := &fakePutter{err: boom}
	arch := newS3Archive(fake, "b", "", clock.NewFake(time.Unix(0, 0)))

	if err := arch.WriteMetrics(context.Background(), nil); err != nil {
		t.Fatalf("empty write must be a no-op, got %v", err)
	}
	err := arch.WriteMetrics(context.Background(), []domain.BatchMetrics{{Source: "world"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped put error, got %v", err)
	}
}
