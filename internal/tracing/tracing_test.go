package tracing

import (
	"context"
	"testing"
)

func TestInstallProviderAndStartFrame(t *testing.T) {
	tp, err := InstallProvider("core-test")
	if err != nil {
		t.Fatalf("install provider: %v", err)
	}
	defer tp.Shutdown(context.Background())

	_, span := StartFrame(context.Background(), "core", "MESSAGE")
	span.End()

	_, grantSpan := StartGrantCycle(context.Background(), "fed1", 100)
	EndWithOutcome(grantSpan, "grant", 100)
}
