package timescaledb

const createTableSQL = `
CREATE TABLE IF NOT EXISTS segments (
    run_id uuid NOT NULL,
    px integer NOT NULL,
    py integer NOT NULL,
    seq integer NOT NULL,
    robust boolean NOT NULL DEFAULT false,
    start_date integer NOT NULL,
    end_date integer NOT NULL,
    break_date integer NULL,
    fit_bands integer[] NULL,
    coef jsonb NOT NULL,
    rmse float8[] NULL,
    residual_check jsonb NULL,
    processed_at timestamp WITH TIME ZONE NOT NULL,
    PRIMARY KEY (run_id, px, py, seq, robust, start_date)
);`

// Tables created before residual checks were stored lack the column.
const addCheckColumnSQL = `ALTER TABLE segments ADD COLUMN IF NOT EXISTS residual_check jsonb NULL;`

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

// Dates are ordinal days, so chunks are roughly one decade wide.
const createHypertableSQL = `SELECT create_hypertable('segments', 'start_date', chunk_time_interval => 3653, if_not_exists => TRUE);`

const createPixelIndexSQL = `CREATE INDEX IF NOT EXISTS segments_pixel_idx ON segments (px, py, start_date DESC);`

const createBreaksViewSQL = `
CREATE OR REPLACE VIEW segment_breaks AS
SELECT run_id, px, py, break_date
FROM segments
WHERE break_date IS NOT NULL AND robust = false;`
