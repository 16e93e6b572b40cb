package statecache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"deliverydash/pathdata"
)

func TestKeys(t *testing.T) {
	if got := positionKey(3); got != "deliverydash:robot:3:position" {
		t.Errorf("positionKey = %q", got)
	}
	if got := trajectoryKey(42); got != "deliverydash:request:42:trajectory" {
		t.Errorf("trajectoryKey = %q", got)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var r *RedisStore
	ctx := context.Background()
	if err := r.SetRobotPosition(ctx, &RobotPosition{RobotID: 1}); err != nil {
		t.Errorf("SetRobotPosition: %v", err)
	}
	pos, err := r.GetRobotPosition(ctx, 1)
	if pos != nil || err != nil {
		t.Errorf("GetRobotPosition = %v, %v; want nil, nil", pos, err)
	}
	if err := r.SetTrajectory(ctx, &TrajectorySnapshot{RequestID: 1}); err != nil {
		t.Errorf("SetTrajectory: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestUnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedisStore(client, time.Minute)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := r.SetRobotPosition(ctx, &RobotPosition{RobotID: 1, Position: &pathdata.Point{X: 1, Y: 2}})
	if err == nil {
		t.Fatal("expected error from unreachable redis")
	}
	if err := r.Ping(ctx); err == nil {
		t.Error("Ping should fail")
	}
}
