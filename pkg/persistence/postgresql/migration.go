package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Projects, flows and published versions
			CREATE TABLE projects (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				variables JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published')),
				entry_node_id VARCHAR(255) NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				settings JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_flows_project_id ON flows(project_id);
			CREATE INDEX idx_flows_created_at ON flows(created_at);

			CREATE TABLE flow_versions (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
				project_id VARCHAR(255) NOT NULL,
				number INTEGER NOT NULL,
				entry_node_id VARCHAR(255) NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				settings JSONB,
				is_active BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_flow_versions_number ON flow_versions(flow_id, number);
			-- At most one active version per flow
			CREATE UNIQUE INDEX idx_flow_versions_active ON flow_versions(flow_id) WHERE is_active;
			CREATE INDEX idx_flow_versions_project_active ON flow_versions(project_id) WHERE is_active;
		`,
		2: `
			-- Executions and their step logs
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				version_id VARCHAR(255) NOT NULL,
				project_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL DEFAULT '',
				chat_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				wait_type VARCHAR(50) NOT NULL DEFAULT '',
				wait_payload JSONB,
				wait_deadline TIMESTAMP WITH TIME ZONE,
				variables JSONB NOT NULL DEFAULT '{}',
				step_count INTEGER NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				error_kind VARCHAR(50) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			-- One live execution per chat session
			CREATE UNIQUE INDEX idx_executions_active_session ON executions(project_id, chat_id)
				WHERE status IN ('running', 'waiting');
			CREATE INDEX idx_executions_flow_id ON executions(flow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);
			CREATE INDEX idx_executions_updated_at ON executions(updated_at);
			CREATE INDEX idx_executions_wait_deadline ON executions(wait_deadline) WHERE status = 'waiting';

			CREATE TABLE execution_steps (
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				idx INTEGER NOT NULL,
				id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL DEFAULT '',
				node_label VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				handle VARCHAR(255) NOT NULL DEFAULT '',
				message TEXT NOT NULL DEFAULT '',
				data JSONB,
				variables JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (execution_id, idx)
			);
		`,
		3: `
			-- Chat users and the bonus ledger
			CREATE TABLE users (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				channel_id VARCHAR(255) NOT NULL,
				username VARCHAR(255) NOT NULL DEFAULT '',
				first_name VARCHAR(255) NOT NULL DEFAULT '',
				last_name VARCHAR(255) NOT NULL DEFAULT '',
				phone VARCHAR(64) NOT NULL DEFAULT '',
				referrer_id VARCHAR(255) NOT NULL DEFAULT '',
				attributes JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_users_channel ON users(project_id, channel_id);
			CREATE INDEX idx_users_referrer_id ON users(referrer_id) WHERE referrer_id <> '';

			CREATE TABLE bonus_transactions (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL DEFAULT '',
				user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				amount BIGINT NOT NULL,
				reason VARCHAR(255) NOT NULL DEFAULT '',
				idempotency_key VARCHAR(255) NOT NULL DEFAULT '',
				expires_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_bonus_transactions_user_id ON bonus_transactions(user_id);
			CREATE UNIQUE INDEX idx_bonus_transactions_key ON bonus_transactions(user_id, idempotency_key)
				WHERE idempotency_key <> '';
		`,
	}
}
