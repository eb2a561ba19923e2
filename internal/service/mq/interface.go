package mq

import "context"

// Message 代表一条通用的业务消息
type Message struct {
	ID      string // 消息ID (例如 Redis Stream ID)
	Topic   string // 主题
	Key     string // 分区键 (例如 UserID), 用于 Kafka Partition
	Payload []byte // 消息体 (JSON)
}

// Producer 生产者接口
// 交易结果、跟单跳过、条件单触发等事件经由此发布，聊天前端进程消费后渲染给用户。
type Producer interface {
	// Publish 发送消息
	// key: 分区键 (Partition Key)，例如 UserID。传空字符串则随机分区。
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}
