package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow templates with their steps embedded as JSONB. A
			-- template's step list is a value object owned by the template
			-- aggregate; it is loaded eagerly and never mutated once an
			-- instance references the template.
			CREATE TABLE workflow_templates (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger VARCHAR(50) NOT NULL,
				subject_category VARCHAR(255) NOT NULL DEFAULT '',
				subject_type VARCHAR(255) NOT NULL DEFAULT '',
				steps JSONB NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_by VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_templates_trigger ON workflow_templates(trigger);
			CREATE INDEX idx_workflow_templates_active ON workflow_templates(active);

			CREATE TABLE workflow_instances (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES workflow_templates(id),
				subject_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'in_progress', 'completed', 'cancelled')),
				current_step_execution_id UUID,
				initiated_by VARCHAR(255) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				cancel_reason TEXT NOT NULL DEFAULT '',
				metadata JSONB
			);

			CREATE INDEX idx_workflow_instances_subject ON workflow_instances(subject_id);
			CREATE INDEX idx_workflow_instances_status ON workflow_instances(status);
			CREATE INDEX idx_workflow_instances_template ON workflow_instances(template_id);

			CREATE TABLE workflow_step_executions (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL REFERENCES workflow_instances(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				step_order INT NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'in_progress', 'completed', 'skipped', 'cancelled')),
				assignee_id VARCHAR(255) NOT NULL DEFAULT '',
				assigned_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				completed_by VARCHAR(255),
				decision VARCHAR(50),
				comments TEXT,
				revision_count INT NOT NULL DEFAULT 0,
				escalated_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (instance_id, step_id)
			);

			CREATE INDEX idx_step_executions_instance ON workflow_step_executions(instance_id, step_order);
			CREATE INDEX idx_step_executions_status ON workflow_step_executions(status);
			CREATE INDEX idx_step_executions_assignee ON workflow_step_executions(assignee_id, status);
		`,
	}
}
