// Package statecache mirrors the dashboard's latest robot position and
// accepted trajectory into Redis for other consumers on the floor.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"deliverydash/pathdata"
)

// RobotPosition is the last observed position of a robot. Position is nil
// when the backend reported no coordinates.
type RobotPosition struct {
	RobotID   int64           `json:"robot_id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Position  *pathdata.Point `json:"position"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TrajectorySnapshot is the acquisition outcome for one request.
type TrajectorySnapshot struct {
	RequestID int64            `json:"request_id"`
	State     string           `json:"state"`
	Points    []pathdata.Point `json:"points"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// RedisStore is safe to use as a nil pointer; every method is then a no-op.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func positionKey(robotID int64) string {
	return fmt.Sprintf("deliverydash:robot:%d:position", robotID)
}

func trajectoryKey(requestID int64) string {
	return fmt.Sprintf("deliverydash:request:%d:trajectory", requestID)
}

const allRobotsKey = "deliverydash:robots"

func (r *RedisStore) Ping(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) SetRobotPosition(ctx context.Context, pos *RobotPosition) error {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, positionKey(pos.RobotID), data, r.ttl)
	pipe.SAdd(ctx, allRobotsKey, pos.RobotID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRobotPosition returns nil, nil when nothing is cached.
func (r *RedisStore) GetRobotPosition(ctx context.Context, robotID int64) (*RobotPosition, error) {
	if r == nil {
		return nil, nil
	}
	data, err := r.client.Get(ctx, positionKey(robotID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pos RobotPosition
	return &pos, json.Unmarshal(data, &pos)
}

func (r *RedisStore) SetTrajectory(ctx context.Context, snap *TrajectorySnapshot) error {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, trajectoryKey(snap.RequestID), data, r.ttl).Err()
}

func (r *RedisStore) GetTrajectory(ctx context.Context, requestID int64) (*TrajectorySnapshot, error) {
	if r == nil {
		return nil, nil
	}
	data, err := r.client.Get(ctx, trajectoryKey(requestID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap TrajectorySnapshot
	return &snap, json.Unmarshal(data, &snap)
}

func (r *RedisStore) GetAllRobotIDs(ctx context.Context) ([]int64, error) {
	if r == nil {
		return nil, nil
	}
	members, err := r.client.SMembers(ctx, allRobotsKey).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *RedisStore) RemoveRobot(ctx context.Context, robotID int64) error {
	if r == nil {
		return nil
	}
	pipe := r.client.Pipeline()
	pipe.Del(ctx, positionKey(robotID))
	pipe.SRem(ctx, allRobotsKey, robotID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}
