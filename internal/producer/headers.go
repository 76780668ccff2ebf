package producer

import (
	"context"
	"strconv"

	"google.golang.org/grpc/metadata"
)

// headerValue reads the first value of an incoming gRPC metadata key, the
// transport this server's headers (database, schema, fetch-size,
// split-size, parallelize, data-schema) arrive as.
func headerValue(ctx context.Context, key string) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	vals := md.Get(key)
	if len(vals) == 0 || vals[0] == "" {
		return "", false
	}
	return vals[0], true
}

func headerOr(ctx context.Context, key, def string) string {
	if v, ok := headerValue(ctx, key); ok {
		return v
	}
	return def
}

func headerInt(ctx context.Context, key string, def int) int {
	v, ok := headerValue(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func headerBool(ctx context.Context, key string) bool {
	v, _ := headerValue(ctx, key)
	return v == "true"
}
