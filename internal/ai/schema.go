package ai

// positionsSchemaDescription describes the ClickHouse schema used for NL→SQL prompting.
//
// Keeping it in sync with the table definitions in internal/cache/clickhouse.go.
const positionsSchemaDescription = `
Database: positions

Table: wallets
  - address          String    -- Wallet address (lowercase hex, unique)
  - swap_count       UInt64    -- Cumulative swap count
  - volume           Float64   -- Cumulative volume
  - fees             Float64   -- Cumulative fees paid
  - total_positions  UInt64    -- Positions ever received (mint or transfer in)
  - active_positions UInt64    -- Currently held active positions
  - pool_count       UInt64    -- Distinct pools touched
  - first_action_at  DateTime  -- Earliest observed activity (UTC)
  - last_action_at   DateTime  -- Latest observed activity (UTC)

Table: positions
  - token_id   String   -- Position NFT token id (unique)
  - owner      String   -- Current owner wallet address
  - pool       String   -- Pool identifier
  - liquidity  String   -- Current liquidity (decimal string)
  - tick_lower Int32    -- Lower tick bound
  - tick_upper Int32    -- Upper tick bound
  - active     UInt8    -- 1 while the position is open, 0 after burn

Table: position_events
  - tx_hash   String    -- Transaction hash (unique id)
  - action    String    -- One of 'mint', 'burn', 'transfer'
  - from_addr String    -- Sender address (null sentinel for mints)
  - to_addr   String    -- Receiver address (null sentinel for burns)
  - token_id  String    -- Position NFT token id
  - height    UInt64    -- Block height
  - timestamp DateTime  -- Block time (UTC)

Table: wallet_timeline
  - wallet    String    -- Wallet address
  - action    String    -- One of 'mint', 'burn', 'transfer'
  - pool      String    -- Pool identifier (may be empty)
  - tx_hash   String    -- Transaction hash
  - height    UInt64    -- Block height
  - timestamp DateTime  -- Block time (UTC)

Notes:
  - Use FINAL when reading wallets or positions to collapse row versions.
  - Time filters should use timestamp, e.g. timestamp >= now() - INTERVAL 24 HOUR.
  - "Most active wallets" usually means ORDER BY total_positions or count() of events DESC.
`
